package rag

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptSet is the YAML document holding every prompt the pipeline sends.
type PromptSet struct {
	System         string `yaml:"system"`
	GroundedAnswer string `yaml:"grounded_answer"`
	Rerank         string `yaml:"rerank"`
	NoMaterial     string `yaml:"no_material"`
}

// Prompts holds parsed prompt templates.
type Prompts struct {
	system     string
	noMaterial string
	answer     *template.Template
	rerank     *template.Template
}

// PromptPassage is a numbered passage rendered into a prompt.
type PromptPassage struct {
	Number   int
	Filename string
	Position int
	Text     string
}

type promptData struct {
	Query    string
	Passages []PromptPassage
}

// DefaultPrompts returns the prompts compiled into the binary.
func DefaultPrompts() *Prompts {
	p, err := parsePrompts(defaultPromptsYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded prompts: %v", err))
	}
	return p
}

// LoadPrompts reads a prompt file and overlays it on the embedded defaults.
// Keys missing from the file keep their default value. An empty path returns
// the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return parsePrompts(defaultPromptsYAML, data)
}

func parsePrompts(base, override []byte) (*Prompts, error) {
	var set PromptSet
	if err := yaml.Unmarshal(base, &set); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	if len(override) > 0 {
		var custom PromptSet
		if err := yaml.Unmarshal(override, &custom); err != nil {
			return nil, fmt.Errorf("failed to parse prompts: %w", err)
		}
		set.merge(custom)
	}

	answer, err := template.New("grounded_answer").Parse(set.GroundedAnswer)
	if err != nil {
		return nil, fmt.Errorf("invalid grounded_answer template: %w", err)
	}
	rerank, err := template.New("rerank").Parse(set.Rerank)
	if err != nil {
		return nil, fmt.Errorf("invalid rerank template: %w", err)
	}
	if strings.TrimSpace(set.NoMaterial) == "" {
		return nil, fmt.Errorf("no_material prompt must not be empty")
	}

	return &Prompts{
		system:     strings.TrimSpace(set.System),
		noMaterial: strings.TrimSpace(set.NoMaterial),
		answer:     answer,
		rerank:     rerank,
	}, nil
}

func (s *PromptSet) merge(o PromptSet) {
	if o.System != "" {
		s.System = o.System
	}
	if o.GroundedAnswer != "" {
		s.GroundedAnswer = o.GroundedAnswer
	}
	if o.Rerank != "" {
		s.Rerank = o.Rerank
	}
	if o.NoMaterial != "" {
		s.NoMaterial = o.NoMaterial
	}
}

// System returns the system instruction sent with every generation call
func (p *Prompts) System() string { return p.system }

// NoMaterial returns the answer given when retrieval finds nothing
func (p *Prompts) NoMaterial() string { return p.noMaterial }

// RenderAnswer builds the grounded answer prompt
func (p *Prompts) RenderAnswer(query string, passages []PromptPassage) (string, error) {
	return render(p.answer, query, passages)
}

// RenderRerank builds the reranking prompt
func (p *Prompts) RenderRerank(query string, passages []PromptPassage) (string, error) {
	return render(p.rerank, query, passages)
}

func render(t *template.Template, query string, passages []PromptPassage) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, promptData{Query: query, Passages: passages}); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}
