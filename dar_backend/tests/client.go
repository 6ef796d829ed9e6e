package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dar_platform/dar_backend/auth"
	"dar_platform/dar_backend/catalogue"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

type httpStatusError struct {
	code    int
	message string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("request returned status %d, content '%v'", e.code, e.message)
}

// StatusCode returns the http status carried by an error from Do, or 0 if
// the error is not a status error.
func StatusCode(err error) int {
	var serr *httpStatusError
	if errors.As(err, &serr) {
		return serr.code
	}
	return 0
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return &httpStatusError{code: res.StatusCode, message: w.Body.String()}
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	principal auth.Principal
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type userInfo struct {
	UserId   uuid.UUID `json:"user_uuid"`
	FullName string    `json:"user_full_name"`
	Username string    `json:"user_username"`
}

type workspaceInfo struct {
	WorkspaceId uuid.UUID `json:"workspace_uuid"`
	Name        string    `json:"workspace_name"`
}

type requestColumnInfo struct {
	ColumnName        string `json:"column_name"`
	ColumnDescription string `json:"column_description"`
}

type requestTableInfo struct {
	TableName        string              `json:"table_name"`
	TableDescription string              `json:"table_description"`
	WhereStatement   *string             `json:"where_statement"`
	Columns          []requestColumnInfo `json:"columns"`
}

type requestListEntry struct {
	RequestId uuid.UUID     `json:"request_uuid"`
	Title     string        `json:"title"`
	Status    string        `json:"status"`
	CreatedOn time.Time     `json:"created_on"`
	Workspace workspaceInfo `json:"workspace"`
	Creator   userInfo      `json:"creator"`
}

type requestDetail struct {
	requestListEntry

	Justification    string             `json:"justification"`
	Comment          *string            `json:"comment"`
	TablesAndColumns []requestTableInfo `json:"tables_and_columns"`
	ReviewerDecision *string            `json:"reviewer_decision"`
	Reviewer         *userInfo          `json:"reviewer"`
	ReviewedOn       *time.Time         `json:"reviewed_on"`
	AdfLink          *string            `json:"adf_link"`
}

type createRequestArgs struct {
	Title            string             `json:"title"`
	WorkspaceId      uuid.UUID          `json:"workspace_uuid"`
	Justification    string             `json:"justification"`
	Comment          *string            `json:"comment"`
	TablesAndColumns []requestTableInfo `json:"tables_and_columns"`
}

func (c *client) createUser(user userInfo) error {
	return c.Post("/user/create").Json(user).Do(nil)
}

func (c *client) listUsers() ([]userInfo, error) {
	var users []userInfo
	err := c.Get("/user/list").Do(&users)
	return users, err
}

func (c *client) userInfo() (userInfo, []auth.Role, error) {
	var info struct {
		userInfo
		Roles []auth.Role `json:"roles"`
	}
	err := c.Get("/user/info").Do(&info)
	return info.userInfo, info.Roles, err
}

func (c *client) visibilityMatrix() (map[uuid.UUID][]uuid.UUID, map[uuid.UUID][]uuid.UUID, error) {
	var matrix struct {
		UserToWorkspaces map[uuid.UUID][]uuid.UUID `json:"user_to_workspaces"`
		WorkspaceToUsers map[uuid.UUID][]uuid.UUID `json:"workspace_to_users"`
	}
	err := c.Get("/user/visibility-matrix").Do(&matrix)
	return matrix.UserToWorkspaces, matrix.WorkspaceToUsers, err
}

type workspaceWriteArgs struct {
	Name            string      `json:"workspace_name"`
	VisibleForUsers []uuid.UUID `json:"visible_for_users"`
}

func (c *client) createWorkspace(name string, users ...uuid.UUID) (uuid.UUID, error) {
	var res struct {
		WorkspaceId uuid.UUID `json:"workspace_uuid"`
	}
	err := c.Post("/workspace/create").Json(workspaceWriteArgs{Name: name, VisibleForUsers: users}).Do(&res)
	return res.WorkspaceId, err
}

func (c *client) updateWorkspace(workspaceId uuid.UUID, name string, users ...uuid.UUID) error {
	endpoint := fmt.Sprintf("/workspace/%v/update", workspaceId)
	return c.Post(endpoint).Json(workspaceWriteArgs{Name: name, VisibleForUsers: users}).Do(nil)
}

func (c *client) deleteWorkspace(workspaceId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/workspace/%v", workspaceId)).Do(nil)
}

func (c *client) listWorkspaces() ([]workspaceInfo, error) {
	var workspaces []workspaceInfo
	err := c.Get("/workspace/list").Do(&workspaces)
	return workspaces, err
}

func (c *client) workspaceUsers(workspaceId uuid.UUID) ([]uuid.UUID, error) {
	var res struct {
		Users []uuid.UUID `json:"users"`
	}
	err := c.Get(fmt.Sprintf("/workspace/%v/users", workspaceId)).Do(&res)
	return res.Users, err
}

func (c *client) createRequest(args createRequestArgs) (uuid.UUID, error) {
	var res struct {
		RequestId uuid.UUID `json:"request_uuid"`
	}
	err := c.Post("/request/create").Json(args).Do(&res)
	return res.RequestId, err
}

func (c *client) listRequests() ([]requestListEntry, error) {
	var requests []requestListEntry
	err := c.Get("/request/list").Do(&requests)
	return requests, err
}

func (c *client) getRequest(requestId uuid.UUID) (requestDetail, error) {
	var detail requestDetail
	err := c.Get(fmt.Sprintf("/request/%v", requestId)).Do(&detail)
	return detail, err
}

func (c *client) deleteRequest(requestId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/request/%v", requestId)).Do(nil)
}

func (c *client) reviewRequest(requestId uuid.UUID, status, decision string) error {
	body := map[string]string{"status": status, "reviewer_decision": decision}
	return c.Post(fmt.Sprintf("/request/%v/review", requestId)).Json(body).Do(nil)
}

func (c *client) commitRequest(requestId uuid.UUID) (string, error) {
	var res struct {
		AdfLink string `json:"adf_link"`
	}
	err := c.Post(fmt.Sprintf("/request/%v/commit", requestId)).Do(&res)
	return res.AdfLink, err
}

func (c *client) catalogue(search string) (map[string]catalogue.TableRecord, error) {
	endpoint := "/catalogue/"
	if search != "" {
		endpoint += "?search=" + search
	}
	var records map[string]catalogue.TableRecord
	err := c.Get(endpoint).Do(&records)
	return records, err
}

func (c *client) login(username, password string) (string, error) {
	var res struct {
		AccessToken string `json:"access_token"`
	}
	err := c.Post("/user/login").Json(map[string]string{"username": username, "password": password}).Do(&res)
	return res.AccessToken, err
}
