package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dar_platform/dar_backend/auth"
	"dar_platform/dar_backend/catalogue"
	"dar_platform/dar_backend/schema"
	"dar_platform/dar_backend/services"
	"dar_platform/dar_backend/storage"
)

type testEnv struct {
	platform    services.DarPlatform
	api         chi.Router
	db          *gorm.DB
	provisioner *ProvisionerStub
	userAuth    *auth.BasicIdentityProvider
}

const (
	bootstrapUsername = "manager@example.com"
	bootstrapPassword = "manager_password123"
)

func writeCatalogueArtifacts(t *testing.T, store storage.Storage) {
	artifacts := map[string]interface{}{
		"catalogue.json": map[string]catalogue.RawTable{
			"Admissions": {
				TableDescription: "Hospital admission episodes",
				ColumnDescriptions: map[string]string{
					"AdmissionId": "Unique admission identifier",
					"Notes":       "Free text clinical notes",
				},
				FreeTextColumns: []string{"Notes"},
			},
			"Demographics": {
				TableDescription: "Client demographic details",
				ColumnDescriptions: map[string]string{
					"ClientRef": "Reference to the client",
				},
				ClientIdColumns: []string{"ClientRef"},
			},
		},
		"row_counts.json":     map[string]int64{"Admissions": 100, "Demographics": 50},
		"classification.json": map[string]string{"Admissions": "identifiable", "Demographics": "identifiable"},
		"primary_keys.json":   map[string][]string{"Admissions": {"AdmissionId"}},
		"sql_structure.json": map[string]catalogue.SqlTable{
			"Admissions": {Columns: map[string]catalogue.SqlColumn{
				"AdmissionId": {IsNullable: "NO", DataType: "bigint"},
				"Notes":       {IsNullable: "YES", DataType: "text"},
			}},
			"Demographics": {Columns: map[string]catalogue.SqlColumn{
				"ClientRef": {IsNullable: "NO", DataType: "varchar"},
			}},
		},
	}

	for name, artifact := range artifacts {
		data, err := json.Marshal(artifact)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Write(filepath.Join("catalogue", name), bytes.NewReader(data)); err != nil {
			t.Fatal(err)
		}
	}

	manifest := strings.Join([]string{
		"catalogue: catalogue/catalogue.json",
		"row_counts: catalogue/row_counts.json",
		"table_classification: catalogue/classification.json",
		"primary_keys: catalogue/primary_keys.json",
		"sql_structure: catalogue/sql_structure.json",
	}, "\n")
	if err := store.Write("catalogue/manifest.yaml", strings.NewReader(manifest)); err != nil {
		t.Fatal(err)
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Workspace{}, &schema.WorkspaceGrant{},
		&schema.Request{}, &schema.RequestTable{}, &schema.RequestColumn{},
	)
	if err != nil {
		t.Fatal(err)
	}

	store := storage.NewSharedDisk(t.TempDir())
	writeCatalogueArtifacts(t, store)

	manifest, err := catalogue.LoadManifest(store, "catalogue/manifest.yaml")
	if err != nil {
		t.Fatal(err)
	}
	index, err := catalogue.LoadIndex(store, manifest)
	if err != nil {
		t.Fatal(err)
	}

	userAuth, err := auth.NewBasicIdentityProvider(
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:            []byte("290zcv02ai249"),
			BootstrapUsername: bootstrapUsername,
			BootstrapFullName: "Bootstrap Manager",
			BootstrapPassword: bootstrapPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	basicAuth := userAuth.(*auth.BasicIdentityProvider)

	provisioner := newProvisionerStub()

	platform := services.NewDarPlatform(db, provisioner, index, userAuth)

	return &testEnv{
		platform:    platform,
		api:         platform.Routes(),
		db:          db,
		provisioner: provisioner,
		userAuth:    basicAuth,
	}
}

// newClient mints a token for a fresh principal with the given roles. The
// principal mirrors what the external identity provider would issue, it does
// not create a local user row.
func (env *testEnv) newClient(t *testing.T, username string, roles ...auth.Role) client {
	principal := auth.Principal{
		UserId:   uuid.New(),
		FullName: fmt.Sprintf("Test User %v", username),
		Username: username,
		Roles:    roles,
	}

	token, err := env.userAuth.TokenFor(principal)
	if err != nil {
		t.Fatal(err)
	}

	return client{api: env.api, authToken: token, principal: principal}
}

func (env *testEnv) newResearcher(t *testing.T, username string) client {
	return env.newClient(t, username, auth.RoleResearcher)
}

func (env *testEnv) newDataManager(t *testing.T, username string) client {
	return env.newClient(t, username, auth.RoleDataManager)
}

// registerUser provisions a local user row for the principal so grants can
// reference it.
func (env *testEnv) registerUser(t *testing.T, dm client, user client) {
	err := dm.createUser(userInfo{
		UserId:   user.principal.UserId,
		FullName: user.principal.FullName,
		Username: user.principal.Username,
	})
	if err != nil {
		t.Fatal(err)
	}
}
