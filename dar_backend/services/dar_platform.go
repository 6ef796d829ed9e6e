package services

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"dar_platform/dar_backend/auth"
	"dar_platform/dar_backend/catalogue"
	"dar_platform/dar_backend/provisioning"
	"dar_platform/utils"
)

const Version = "2.0.0"

// DarPlatform aggregates the services of the data access request backend
// behind a single router.
type DarPlatform struct {
	user      UserService
	workspace WorkspaceService
	request   RequestService
	catalogue CatalogueService

	db *gorm.DB
}

func NewDarPlatform(
	db *gorm.DB, provisioner provisioning.Client, index *catalogue.Index, userAuth auth.IdentityProvider,
) DarPlatform {
	return DarPlatform{
		user:      UserService{db: db, userAuth: userAuth},
		workspace: WorkspaceService{db: db, userAuth: userAuth},
		request:   RequestService{db: db, provisioner: provisioner, userAuth: userAuth},
		catalogue: CatalogueService{index: index, userAuth: userAuth},
		db:        db,
	}
}

func (p *DarPlatform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/workspace", p.workspace.Routes())
	r.Mount("/request", p.request.Routes())
	r.Mount("/catalogue", p.catalogue.Routes())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJsonResponse(w, map[string]string{
			"title":       "DAR Platform",
			"version":     Version,
			"environment": os.Getenv("ENVIRONMENT"),
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
