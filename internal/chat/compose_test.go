package chat

import (
	"context"
	"strings"
	"testing"

	"ragserver/internal/vectorstore"
)

func TestStaticComposer(t *testing.T) {
	results := []vectorstore.SearchResult{
		{Content: "Containers share the host kernel.", Score: 0.9, Metadata: map[string]string{"title": "Docker Guide", "category": "ops"}},
		{Content: "Images are immutable templates.", Score: 0.7, Metadata: map[string]string{"title": "Image Basics"}},
		{Content: "Chunk without metadata.", Score: 0.6},
	}

	answer, err := StaticComposer{}.Compose(context.Background(), "what is a container", nil, results)
	if err != nil {
		t.Fatalf("Compose() error: %v", err)
	}

	for _, want := range []string{
		"[1] Docker Guide (ops)",
		"[2] Image Basics",
		"[3] Untitled",
		"Containers share the host kernel.",
		"Images are immutable templates.",
	} {
		if !strings.Contains(answer, want) {
			t.Errorf("answer missing %q:\n%s", want, answer)
		}
	}
}
