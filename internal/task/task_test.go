package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParentPath(t *testing.T) {
	require.Equal(t, "proj/backend", (&Task{Path: "proj/backend/api"}).ParentPath())
	require.Equal(t, "proj", (&Task{Path: "proj/backend"}).ParentPath())
	require.Equal(t, "", (&Task{Path: "proj"}).ParentPath())
	require.Equal(t, "", (&Task{Path: "/proj"}).ParentPath())
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Task{
		Path:         "a",
		Dependencies: []string{"b"},
		Metadata:     map[string]any{"k": "v"},
	}
	clone := orig.Clone()
	clone.Dependencies[0] = "c"
	clone.Metadata["k"] = "w"
	require.Equal(t, "b", orig.Dependencies[0])
	require.Equal(t, "v", orig.Metadata["k"])
}

func TestUpdateApplyMergesMetadata(t *testing.T) {
	tk := &Task{
		Path:     "a",
		Status:   StatusPending,
		Metadata: map[string]any{"keep": 1, "replace": "old"},
	}
	title := "new title"
	status := StatusInProgress
	deps := []string{"b", "c"}
	Update{
		Title:        &title,
		Status:       &status,
		Dependencies: &deps,
		Metadata:     map[string]any{"replace": "new", "added": true},
	}.Apply(tk)

	require.Equal(t, "new title", tk.Title)
	require.Equal(t, StatusInProgress, tk.Status)
	require.Equal(t, []string{"b", "c"}, tk.Dependencies)
	require.Equal(t, 1, tk.Metadata["keep"])
	require.Equal(t, "new", tk.Metadata["replace"])
	require.Equal(t, true, tk.Metadata["added"])
	require.NotEmpty(t, tk.UpdatedAt)
}

func TestUpdateApplyLeavesNilFieldsAlone(t *testing.T) {
	tk := &Task{Path: "a", Title: "orig", Status: StatusPending, Dependencies: []string{"b"}}
	Update{}.Apply(tk)
	require.Equal(t, "orig", tk.Title)
	require.Equal(t, StatusPending, tk.Status)
	require.Equal(t, []string{"b"}, tk.Dependencies)
}
