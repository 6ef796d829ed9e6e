package provisioning

import (
	"errors"

	"github.com/google/uuid"
)

// TableSelection is the per table slice of an approved request that the
// pipeline materializes: the granted columns plus an optional row filter.
type TableSelection struct {
	Columns        []string `json:"columns"`
	WhereStatement *string  `json:"where_statement"`
}

// RequestDefinition maps table name to the selection granted for that table.
type RequestDefinition map[string]TableSelection

var ErrDispatchFailed = errors.New("provisioning pipeline dispatch failed")

// Client triggers a run of the external provisioning pipeline for an approved
// request and returns a link where the run can be monitored.
type Client interface {
	Dispatch(definition RequestDefinition, workspaceId uuid.UUID) (string, error)
}
