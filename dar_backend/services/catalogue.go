package services

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dar_platform/dar_backend/auth"
	"dar_platform/dar_backend/catalogue"
	"dar_platform/utils"
)

type CatalogueService struct {
	index    *catalogue.Index
	userAuth auth.IdentityProvider
}

func (s *CatalogueService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.ResearcherOrDataManagerOnly).Get("/", s.GetCatalogue)

	return r
}

func (s *CatalogueService) GetCatalogue(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	utils.WriteJsonResponse(w, s.index.Search(search))
}
