package tests

import (
	"net/http"
	"testing"

	"github.com/google/uuid"

	"dar_platform/dar_backend/auth"
)

func TestRoleGates(t *testing.T) {
	env := setupTestEnv(t)

	noRoles := env.newClient(t, "norole@example.com")
	researcher := env.newResearcher(t, "researcher@example.com")
	dm := env.newDataManager(t, "dm@example.com")
	dual := env.newClient(t, "dual@example.com", auth.RoleResearcher, auth.RoleDataManager)

	// A token with no recognized role fails every gate.
	if _, err := noRoles.listRequests(); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for role-less principal, got %v", err)
	}
	if _, err := noRoles.catalogue(""); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for role-less principal, got %v", err)
	}

	// Researchers fail data manager gates.
	if _, err := researcher.listUsers(); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for researcher on user list, got %v", err)
	}
	if _, err := researcher.createWorkspace("nope"); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for researcher creating workspace, got %v", err)
	}
	if _, _, err := researcher.visibilityMatrix(); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for researcher on visibility matrix, got %v", err)
	}

	// Both single roles pass the shared gates, and a dual-role principal
	// passes everything.
	if _, err := researcher.listRequests(); err != nil {
		t.Fatal(err)
	}
	if _, err := dm.listRequests(); err != nil {
		t.Fatal(err)
	}
	if _, err := dual.listUsers(); err != nil {
		t.Fatal(err)
	}
	if _, err := dual.listRequests(); err != nil {
		t.Fatal(err)
	}

	// Missing token fails before any gate.
	anonymous := client{api: env.api}
	if _, err := anonymous.listRequests(); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
}

func TestUserInfo(t *testing.T) {
	env := setupTestEnv(t)

	researcher := env.newResearcher(t, "researcher@example.com")

	info, roles, err := researcher.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.UserId != researcher.principal.UserId || info.Username != "researcher@example.com" {
		t.Fatalf("unexpected user info: %v", info)
	}
	if len(roles) != 1 || roles[0] != auth.RoleResearcher {
		t.Fatalf("unexpected roles: %v", roles)
	}
}

func TestUserCrud(t *testing.T) {
	env := setupTestEnv(t)
	dm := env.newDataManager(t, "dm@example.com")

	user := userInfo{UserId: uuid.New(), FullName: "Alice Researcher", Username: "alice@example.com"}
	if err := dm.createUser(user); err != nil {
		t.Fatal(err)
	}

	if err := dm.createUser(user); StatusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate user, got %v", err)
	}

	var fetched userInfo
	if err := dm.Get("/user/" + user.UserId.String()).Do(&fetched); err != nil {
		t.Fatal(err)
	}
	if fetched != user {
		t.Fatalf("fetched user %v does not match created %v", fetched, user)
	}

	update := map[string]string{"user_full_name": "Alice R.", "user_username": "alice@example.com"}
	if err := dm.Post("/user/" + user.UserId.String() + "/update").Json(update).Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := dm.Get("/user/" + user.UserId.String()).Do(&fetched); err != nil {
		t.Fatal(err)
	}
	if fetched.FullName != "Alice R." {
		t.Fatalf("update did not apply: %v", fetched)
	}

	users, err := dm.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}

	if err := dm.Delete("/user/" + user.UserId.String()).Do(nil); err != nil {
		t.Fatal(err)
	}
	if err := dm.Get("/user/" + user.UserId.String()).Do(&fetched); StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestLazyDataManagerRegistration(t *testing.T) {
	env := setupTestEnv(t)
	dm := env.newDataManager(t, "dm@example.com")

	users, err := dm.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Fatalf("no users should exist yet: %v", users)
	}

	workspaceId, err := dm.createWorkspace("study-1")
	if err != nil {
		t.Fatal(err)
	}

	// Filing a request as a data manager registers them as a user.
	if _, err := dm.createRequest(sampleRequestArgs(workspaceId)); err != nil {
		t.Fatal(err)
	}

	users, err = dm.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].UserId != dm.principal.UserId {
		t.Fatalf("data manager should have been registered lazily: %v", users)
	}
}

func TestVisibilityMatrix(t *testing.T) {
	env := setupTestEnv(t)
	dm := env.newDataManager(t, "dm@example.com")

	alice := env.newResearcher(t, "alice@example.com")
	bob := env.newResearcher(t, "bob@example.com")
	env.registerUser(t, dm, alice)
	env.registerUser(t, dm, bob)

	ws1, err := dm.createWorkspace("study-1", alice.principal.UserId, bob.principal.UserId)
	if err != nil {
		t.Fatal(err)
	}
	ws2, err := dm.createWorkspace("study-2", bob.principal.UserId)
	if err != nil {
		t.Fatal(err)
	}

	userToWorkspaces, workspaceToUsers, err := dm.visibilityMatrix()
	if err != nil {
		t.Fatal(err)
	}

	if !sameIds(userToWorkspaces[alice.principal.UserId], []uuid.UUID{ws1}) {
		t.Fatalf("unexpected workspaces for alice: %v", userToWorkspaces[alice.principal.UserId])
	}
	if !sameIds(userToWorkspaces[bob.principal.UserId], []uuid.UUID{ws1, ws2}) {
		t.Fatalf("unexpected workspaces for bob: %v", userToWorkspaces[bob.principal.UserId])
	}
	if !sameIds(workspaceToUsers[ws1], []uuid.UUID{alice.principal.UserId, bob.principal.UserId}) {
		t.Fatalf("unexpected users for study-1: %v", workspaceToUsers[ws1])
	}
	if !sameIds(workspaceToUsers[ws2], []uuid.UUID{bob.principal.UserId}) {
		t.Fatalf("unexpected users for study-2: %v", workspaceToUsers[ws2])
	}
}

func TestLocalLogin(t *testing.T) {
	env := setupTestEnv(t)

	anonymous := client{api: env.api}

	if _, err := anonymous.login(bootstrapUsername, "wrong-password"); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %v", err)
	}
	if _, err := anonymous.login("unknown@example.com", bootstrapPassword); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown username, got %v", err)
	}

	token, err := anonymous.login(bootstrapUsername, bootstrapPassword)
	if err != nil {
		t.Fatal(err)
	}

	// The bootstrap account is a data manager, its token passes DM gates.
	bootstrap := client{api: env.api, authToken: token}
	if _, err := bootstrap.listUsers(); err != nil {
		t.Fatal(err)
	}
}
