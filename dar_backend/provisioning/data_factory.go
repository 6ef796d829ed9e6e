package provisioning

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// DataFactoryClient dispatches pipeline runs through the Azure Data Factory
// management REST api. The request definition travels base64 encoded in the
// run parameters so the pipeline receives it as a single opaque string.
type DataFactoryClient struct {
	managementUrl string
	tokenSource   func() (string, error)

	SubscriptionId string
	ResourceGroup  string
	FactoryName    string
	PipelineName   string
}

const managementApiVersion = "2018-06-01"

func NewDataFactoryClient(managementUrl string, tokenSource func() (string, error), subscriptionId, resourceGroup, factoryName, pipelineName string) Client {
	slog.Info("creating data factory client", "factory", factoryName, "pipeline", pipelineName)
	return &DataFactoryClient{
		managementUrl:  managementUrl,
		tokenSource:    tokenSource,
		SubscriptionId: subscriptionId,
		ResourceGroup:  resourceGroup,
		FactoryName:    factoryName,
		PipelineName:   pipelineName,
	}
}

func (c *DataFactoryClient) createRunEndpoint() (string, error) {
	endpoint, err := url.JoinPath(
		c.managementUrl,
		"subscriptions", c.SubscriptionId,
		"resourceGroups", c.ResourceGroup,
		"providers", "Microsoft.DataFactory",
		"factories", c.FactoryName,
		"pipelines", c.PipelineName,
		"createRun",
	)
	if err != nil {
		return "", fmt.Errorf("error formatting createRun endpoint: %w", err)
	}
	return endpoint + "?api-version=" + managementApiVersion, nil
}

// monitoringUrl builds the link to the run in the data factory monitoring ui.
// The factory resource id is carried percent encoded in the query string.
func (c *DataFactoryClient) monitoringUrl(runId string) string {
	factoryResource := url.QueryEscape(fmt.Sprintf(
		"/subscriptions/%v/resourceGroups/%v/providers/Microsoft.DataFactory/factories/%v",
		c.SubscriptionId, c.ResourceGroup, c.FactoryName,
	))
	return fmt.Sprintf("https://adf.azure.com/en/monitoring/pipelineruns/%v?factory=%v", runId, factoryResource)
}

func (c *DataFactoryClient) Dispatch(definition RequestDefinition, workspaceId uuid.UUID) (string, error) {
	query, err := json.Marshal(definition)
	if err != nil {
		return "", fmt.Errorf("error serializing request definition: %w", err)
	}

	params := map[string]string{
		"query_base64":   base64.StdEncoding.EncodeToString(query),
		"workspace_uuid": workspaceId.String(),
	}
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("error serializing run parameters: %w", err)
	}

	endpoint, err := c.createRunEndpoint()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating createRun request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	token, err := c.tokenSource()
	if err != nil {
		return "", fmt.Errorf("error getting credentials for pipeline dispatch: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+token)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Error("error sending createRun request", "pipeline", c.PipelineName, "error", err)
		return "", fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		data, readErr := io.ReadAll(res.Body)
		if readErr == nil {
			slog.Error("createRun returned error", "pipeline", c.PipelineName, "code", res.StatusCode, "response", string(data))
		}
		return "", fmt.Errorf("%w: createRun returned status %d", ErrDispatchFailed, res.StatusCode)
	}

	var run struct {
		RunId string `json:"runId"`
	}
	if err := json.NewDecoder(res.Body).Decode(&run); err != nil {
		return "", fmt.Errorf("%w: error parsing createRun response: %v", ErrDispatchFailed, err)
	}
	if run.RunId == "" {
		return "", fmt.Errorf("%w: createRun response is missing the run id", ErrDispatchFailed)
	}

	slog.Info("dispatched provisioning pipeline run", "pipeline", c.PipelineName, "run_id", run.RunId, "workspace_id", workspaceId)

	return c.monitoringUrl(run.RunId), nil
}
