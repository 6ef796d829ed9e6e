package provisioning_test

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"dar_platform/dar_backend/provisioning"
)

func staticToken(token string) func() (string, error) {
	return func() (string, error) { return token, nil }
}

func TestDispatch(t *testing.T) {
	workspaceId := uuid.New()

	var gotPath, gotAuth string
	var gotParams map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotParams))
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]string{"runId": "run-123"}))
	}))
	defer server.Close()

	client := provisioning.NewDataFactoryClient(
		server.URL, staticToken("token-abc"), "sub-1", "rg-1", "factory-1", "pipeline-1",
	)

	where := "Age > 18"
	definition := provisioning.RequestDefinition{
		"Admissions": {Columns: []string{"AdmissionId", "Notes"}, WhereStatement: &where},
		"Clients":    {Columns: []string{"ClientRef"}},
	}

	link, err := client.Dispatch(definition, workspaceId)
	assert.NoError(t, err)

	assert.Equal(t,
		"/subscriptions/sub-1/resourceGroups/rg-1/providers/Microsoft.DataFactory/factories/factory-1/pipelines/pipeline-1/createRun?api-version=2018-06-01",
		gotPath,
	)
	assert.Equal(t, "Bearer token-abc", gotAuth)
	assert.Equal(t, workspaceId.String(), gotParams["workspace_uuid"])

	decoded, err := base64.StdEncoding.DecodeString(gotParams["query_base64"])
	assert.NoError(t, err)
	var gotDefinition provisioning.RequestDefinition
	assert.NoError(t, json.Unmarshal(decoded, &gotDefinition))
	assert.Equal(t, definition, gotDefinition)

	assert.True(t, strings.HasPrefix(link, "https://adf.azure.com/en/monitoring/pipelineruns/run-123?factory="))
	assert.Contains(t, link, "factories%2Ffactory-1")
}

func TestDispatchPipelineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "factory unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := provisioning.NewDataFactoryClient(
		server.URL, staticToken("token"), "sub", "rg", "factory", "pipeline",
	)

	_, err := client.Dispatch(provisioning.RequestDefinition{}, uuid.New())
	assert.ErrorIs(t, err, provisioning.ErrDispatchFailed)
}
