package tests

import (
	"net/http"
	"sort"
	"testing"

	"github.com/google/uuid"

	"dar_platform/dar_backend/schema"
)

func sortedIds(ids []uuid.UUID) []uuid.UUID {
	sorted := append([]uuid.UUID{}, ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	return sorted
}

func sameIds(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = sortedIds(a), sortedIds(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWorkspaceCrud(t *testing.T) {
	env := setupTestEnv(t)
	dm := env.newDataManager(t, "dm@example.com")

	workspaceId, err := dm.createWorkspace("secure-enclave-1")
	if err != nil {
		t.Fatal(err)
	}

	workspaces, err := dm.listWorkspaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(workspaces) != 1 || workspaces[0].Name != "secure-enclave-1" {
		t.Fatalf("unexpected workspace list: %v", workspaces)
	}

	if err := dm.updateWorkspace(workspaceId, "secure-enclave-renamed"); err != nil {
		t.Fatal(err)
	}

	var info workspaceInfo
	if err := dm.Get("/workspace/" + workspaceId.String()).Do(&info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "secure-enclave-renamed" {
		t.Fatalf("update did not change the name: %v", info.Name)
	}

	if err := dm.updateWorkspace(uuid.New(), "nope"); StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 updating missing workspace, got %v", err)
	}

	if err := dm.deleteWorkspace(workspaceId); err != nil {
		t.Fatal(err)
	}
	if err := dm.Get("/workspace/" + workspaceId.String()).Do(&info); StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestGrantReplaceOnWrite(t *testing.T) {
	env := setupTestEnv(t)
	dm := env.newDataManager(t, "dm@example.com")

	alice := env.newResearcher(t, "alice@example.com")
	bob := env.newResearcher(t, "bob@example.com")
	carol := env.newResearcher(t, "carol@example.com")
	for _, researcher := range []client{alice, bob, carol} {
		env.registerUser(t, dm, researcher)
	}

	workspaceId, err := dm.createWorkspace("study-1", alice.principal.UserId, bob.principal.UserId)
	if err != nil {
		t.Fatal(err)
	}

	users, err := dm.workspaceUsers(workspaceId)
	if err != nil {
		t.Fatal(err)
	}
	if !sameIds(users, []uuid.UUID{alice.principal.UserId, bob.principal.UserId}) {
		t.Fatalf("unexpected grant set: %v", users)
	}

	// The new grant list replaces the old one entirely, alice drops out.
	err = dm.updateWorkspace(workspaceId, "study-1", bob.principal.UserId, carol.principal.UserId)
	if err != nil {
		t.Fatal(err)
	}

	users, err = dm.workspaceUsers(workspaceId)
	if err != nil {
		t.Fatal(err)
	}
	if !sameIds(users, []uuid.UUID{bob.principal.UserId, carol.principal.UserId}) {
		t.Fatalf("grants were not replaced as a whole: %v", users)
	}

	// Granting an unknown user fails and leaves the grant set untouched.
	err = dm.updateWorkspace(workspaceId, "study-1", uuid.New())
	if StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 granting unknown user, got %v", err)
	}
	users, err = dm.workspaceUsers(workspaceId)
	if err != nil {
		t.Fatal(err)
	}
	if !sameIds(users, []uuid.UUID{bob.principal.UserId, carol.principal.UserId}) {
		t.Fatalf("failed update should not change grants: %v", users)
	}
}

func TestWorkspaceListVisibility(t *testing.T) {
	env := setupTestEnv(t)
	dm := env.newDataManager(t, "dm@example.com")

	alice := env.newResearcher(t, "alice@example.com")
	env.registerUser(t, dm, alice)

	granted, err := dm.createWorkspace("granted", alice.principal.UserId)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dm.createWorkspace("hidden"); err != nil {
		t.Fatal(err)
	}

	workspaces, err := alice.listWorkspaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(workspaces) != 1 || workspaces[0].WorkspaceId != granted {
		t.Fatalf("researcher should only see granted workspaces: %v", workspaces)
	}

	dmWorkspaces, err := dm.listWorkspaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(dmWorkspaces) != 2 {
		t.Fatalf("data manager should see all workspaces, got %d", len(dmWorkspaces))
	}

	// A researcher with no user row has no grants and sees nothing.
	stranger := env.newResearcher(t, "stranger@example.com")
	strangerWorkspaces, err := stranger.listWorkspaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(strangerWorkspaces) != 0 {
		t.Fatalf("unregistered researcher should see no workspaces: %v", strangerWorkspaces)
	}
}

func TestWorkspaceDeleteWithLiveRequests(t *testing.T) {
	env := setupTestEnv(t)
	dm := env.newDataManager(t, "dm@example.com")

	researcher, workspaceId := grantedResearcher(t, env, dm, "researcher@example.com", "study-1")

	requestId, err := researcher.createRequest(sampleRequestArgs(workspaceId))
	if err != nil {
		t.Fatal(err)
	}

	if err := dm.deleteWorkspace(workspaceId); StatusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 deleting workspace with live requests, got %v", err)
	}

	if err := researcher.deleteRequest(requestId); err != nil {
		t.Fatal(err)
	}

	if err := dm.deleteWorkspace(workspaceId); err != nil {
		t.Fatal(err)
	}

	var grantCount int64
	if result := env.db.Model(&schema.WorkspaceGrant{}).Count(&grantCount); result.Error != nil {
		t.Fatal(result.Error)
	}
	if grantCount != 0 {
		t.Fatalf("grants should be removed with the workspace, got %d", grantCount)
	}
}
