package tests

import (
	"net/http"
	"testing"

	"dar_platform/dar_backend/schema"
)

// Walks the full lifecycle of a data access request, from catalogue browsing
// through grant, creation, review, and provisioning commit.
func TestAccessRequestLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	dm := env.newDataManager(t, "dm@example.com")
	researcher := env.newResearcher(t, "researcher@example.com")

	// The researcher browses the catalogue to pick tables.
	records, err := researcher.catalogue("")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected full catalogue, got %v", records)
	}

	matches, err := researcher.catalogue("clinical")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 catalogue match for 'clinical', got %v", matches)
	}
	if _, ok := matches["Admissions"]; !ok {
		t.Fatal("search should match the Admissions notes column")
	}

	// Without a grant the researcher cannot file against the workspace.
	workspaceId, err := dm.createWorkspace("study-1")
	if err != nil {
		t.Fatal(err)
	}
	env.registerUser(t, dm, researcher)
	if _, err := researcher.createRequest(sampleRequestArgs(workspaceId)); StatusCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 before grant, got %v", err)
	}

	// The data manager grants access and the request goes through.
	if err := dm.updateWorkspace(workspaceId, "study-1", researcher.principal.UserId); err != nil {
		t.Fatal(err)
	}
	requestId, err := researcher.createRequest(sampleRequestArgs(workspaceId))
	if err != nil {
		t.Fatal(err)
	}

	detail, err := researcher.getRequest(requestId)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Status != schema.StatusPending {
		t.Fatalf("expected pending request, got %v", detail.Status)
	}

	// Review and commit.
	if err := dm.reviewRequest(requestId, schema.StatusApproved, "scope is appropriate"); err != nil {
		t.Fatal(err)
	}
	link, err := dm.commitRequest(requestId)
	if err != nil {
		t.Fatal(err)
	}

	// The researcher sees the approval but never the pipeline link.
	detail, err = researcher.getRequest(requestId)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Status != schema.StatusApproved {
		t.Fatalf("expected approved request, got %v", detail.Status)
	}
	if detail.AdfLink != nil {
		t.Fatal("pipeline link must not be visible to the researcher")
	}

	dmDetail, err := dm.getRequest(requestId)
	if err != nil {
		t.Fatal(err)
	}
	if dmDetail.AdfLink == nil || *dmDetail.AdfLink != link {
		t.Fatalf("data manager should see the committed link %v, got %v", link, dmDetail.AdfLink)
	}

	if len(env.provisioner.Dispatches()) != 1 {
		t.Fatal("exactly one pipeline run should have been dispatched")
	}
}
