package backend

import (
	"embed"
	"strings"
)

//go:embed prompts/*.md
var promptFS embed.FS

var (
	systemPrompt  = mustPrompt("system.md")
	analyzePrompt = mustPrompt("analyze.md")
	suggestPrompt = mustPrompt("suggest.md")
	explorePrompt = mustPrompt("explore.md")
	chatPrompt    = mustPrompt("chat.md")
)

func mustPrompt(name string) string {
	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		panic(err)
	}
	return strings.TrimSpace(string(data))
}

// render substitutes {{KEY}} placeholders.
func render(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
