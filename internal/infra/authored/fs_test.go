package authored

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"fanfrenzy/internal/domain"
)

func TestDirFetch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "daily/2024-09-01.json", `{"gameId":"2024-09-01"}`)

	d := NewDir(root)
	data, err := d.Fetch(context.Background(), "daily/2024-09-01.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != `{"gameId":"2024-09-01"}` {
		t.Fatalf("unexpected content %s", data)
	}

	_, err = d.Fetch(context.Background(), "daily/2024-09-02.json")
	if !errors.Is(err, domain.ErrContentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDirRejectsEscapingKeys(t *testing.T) {
	d := NewDir(t.TempDir())
	for _, key := range []string{"../secret.json", "daily/../../x.json", ""} {
		_, err := d.Fetch(context.Background(), key)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("key %q: expected validation error, got %v", key, err)
		}
	}
}

func TestDirWalkListsJSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "daily/2024-09-01.json", `{}`)
	writeFile(t, root, "games/BAL_2012.json", `[]`)
	writeFile(t, root, "README.md", `notes`)

	var keys []string
	err := NewDir(root).Walk(func(key, _ string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "daily/2024-09-01.json" || keys[1] != "games/BAL_2012.json" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
