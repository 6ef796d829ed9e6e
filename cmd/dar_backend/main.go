package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dar_platform/dar_backend/auth"
	"dar_platform/dar_backend/catalogue"
	"dar_platform/dar_backend/provisioning"
	"dar_platform/dar_backend/schema"
	"dar_platform/dar_backend/services"
	"dar_platform/dar_backend/storage"
)

type darBackendEnv struct {
	PublicHostname string
	ShareDir       string
	DatabaseUri    string
	JwtSecret      string

	IdentityProvider  string
	KeycloakServerUrl string
	KeycloakRealm     string

	BootstrapUsername string
	BootstrapFullName string
	BootstrapPassword string
}

// dataFactoryEnv holds the coordinates of the provisioning pipeline. The
// access token is read per dispatch so a sidecar can refresh it on disk.
type dataFactoryEnv struct {
	ManagementUrl  string `env:"ADF_MANAGEMENT_URL" envDefault:"https://management.azure.com"`
	SubscriptionId string `env:"ADF_SUBSCRIPTION_ID,required"`
	ResourceGroup  string `env:"ADF_RESOURCE_GROUP,required"`
	DataFactory    string `env:"ADF_DATA_FACTORY,required"`
	PipelineName   string `env:"ADF_PIPELINE_NAME,required"`
	TokenFile      string `env:"ADF_TOKEN_FILE,required"`
}

func optionalEnv(key string) string {
	return os.Getenv(key)
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func loadEnv() darBackendEnv {
	missingEnvs := []string{}

	requiredEnv := func(key string) string {
		env := os.Getenv(key)
		if env == "" {
			missingEnvs = append(missingEnvs, key)
			slog.Error("missing required env variable", "key", key)
		}
		return env
	}

	env := darBackendEnv{
		PublicHostname: requiredEnv("PUBLIC_HOSTNAME"),
		ShareDir:       requiredEnv("SHARE_DIR"),
		DatabaseUri:    requiredEnv("DATABASE_URI"),
		JwtSecret:      requiredEnv("JWT_SECRET"),

		IdentityProvider:  requiredEnv("IDENTITY_PROVIDER"),
		KeycloakServerUrl: optionalEnv("KEYCLOAK_SERVER_URL"),
		KeycloakRealm:     optionalEnv("KEYCLOAK_REALM"),

		BootstrapUsername: optionalEnv("BOOTSTRAP_USERNAME"),
		BootstrapFullName: optionalEnv("BOOTSTRAP_FULL_NAME"),
		BootstrapPassword: optionalEnv("BOOTSTRAP_PASSWORD"),
	}

	if len(missingEnvs) > 0 {
		log.Fatalf("The following required env vars are missing: %s", strings.Join(missingEnvs, ", "))
	}

	if env.IdentityProvider == "basic" && (env.BootstrapUsername == "" || env.BootstrapPassword == "") {
		log.Fatal("BOOTSTRAP_USERNAME and BOOTSTRAP_PASSWORD must be specified when using the basic identity provider")
	}

	return env
}

func (env *darBackendEnv) postgresDsn() string {
	parts, err := url.Parse(env.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Workspace{}, &schema.WorkspaceGrant{},
		&schema.Request{}, &schema.RequestTable{}, &schema.RequestColumn{},
	)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func newProvisioner() provisioning.Client {
	var adfEnv dataFactoryEnv
	if err := env.Parse(&adfEnv); err != nil {
		log.Fatalf("error loading data factory env vars: %v", err)
	}

	tokenSource := func() (string, error) {
		token, err := os.ReadFile(adfEnv.TokenFile)
		if err != nil {
			return "", fmt.Errorf("error reading access token from %v: %w", adfEnv.TokenFile, err)
		}
		return strings.TrimSpace(string(token)), nil
	}

	return provisioning.NewDataFactoryClient(
		adfEnv.ManagementUrl, tokenSource,
		adfEnv.SubscriptionId, adfEnv.ResourceGroup, adfEnv.DataFactory, adfEnv.PipelineName,
	)
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	manifestPath := flag.String("manifest", "catalogue/manifest.yaml", "Path to the catalogue manifest, relative to the shared storage root.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env := loadEnv()

	err := os.MkdirAll(filepath.Join(env.ShareDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/dar_backend.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(env.postgresDsn())

	sharedStorage := storage.NewSharedDisk(env.ShareDir)

	if usage, err := sharedStorage.Usage(); err == nil {
		slog.Info("shared storage", "location", sharedStorage.Location(), "total_bytes", usage.TotalBytes, "free_bytes", usage.FreeBytes)
	}

	manifest, err := catalogue.LoadManifest(sharedStorage, *manifestPath)
	if err != nil {
		log.Fatalf("error loading catalogue manifest: %v", err)
	}

	index, err := catalogue.LoadIndex(sharedStorage, manifest)
	if err != nil {
		log.Fatalf("error building catalogue index: %v", err)
	}

	var identityProvider auth.IdentityProvider
	if env.IdentityProvider == "keycloak" {
		identityProvider, err = auth.NewKeycloakIdentityProvider(
			auth.NewAuditLogger(auditLog),
			auth.KeycloakArgs{
				ServerUrl: env.KeycloakServerUrl,
				Realm:     env.KeycloakRealm,
			},
		)
		if err != nil {
			log.Fatalf("error creating keycloak identity provider: %v", err)
		}
	} else {
		identityProvider, err = auth.NewBasicIdentityProvider(
			auth.NewAuditLogger(auditLog),
			auth.BasicProviderArgs{
				Secret:            []byte(env.JwtSecret),
				BootstrapUsername: env.BootstrapUsername,
				BootstrapFullName: env.BootstrapFullName,
				BootstrapPassword: env.BootstrapPassword,
			},
		)
		if err != nil {
			log.Fatalf("error creating basic identity provider: %v", err)
		}
	}

	provisioner := newProvisioner()

	darPlatform := services.NewDarPlatform(db, provisioner, index, identityProvider)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{env.PublicHostname},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", darPlatform.Routes())
	r.Handle("/metrics", promhttp.Handler())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
}
