package dialplan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/switchboard/internal/config"
)

// Artifact is one rendered configuration document and where it belongs.
type Artifact struct {
	Name     string
	Path     string
	Content  []byte
	Checksum string
	Reload   []string
}

// Generator concatenates registered sections into artifacts. Sections are
// always emitted in registration order, whatever order an artifact lists
// them in.
type Generator struct {
	order    []string
	sections map[string]Section
}

func NewGenerator(sections ...Section) (*Generator, error) {
	g := &Generator{sections: make(map[string]Section, len(sections))}
	for _, section := range sections {
		name := section.Name()
		if _, dup := g.sections[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSection, name)
		}
		g.sections[name] = section
		g.order = append(g.order, name)
	}
	return g, nil
}

func NewDefaultGenerator() (*Generator, error) {
	return NewGenerator(DefaultSections()...)
}

func (g *Generator) Render(snap *Snapshot, artifacts []config.ArtifactConfig) ([]Artifact, error) {
	out := make([]Artifact, 0, len(artifacts))
	for _, cfg := range artifacts {
		artifact, err := g.RenderArtifact(snap, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, artifact)
	}
	return out, nil
}

func (g *Generator) RenderArtifact(snap *Snapshot, cfg config.ArtifactConfig) (Artifact, error) {
	names, err := g.ordered(cfg.Sections)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact %s: %w", cfg.Name, err)
	}

	lines := []string{
		"; ==========================================================",
		fmt.Sprintf("; switchboard generated configuration: %s", cfg.Name),
		fmt.Sprintf("; revision: %s", snap.RevisionLabel()),
		"; Do not edit. Changes are overwritten by the next apply.",
		"; ==========================================================",
	}
	for _, name := range names {
		body, err := g.sections[name].Generate(snap)
		if err != nil {
			return Artifact{}, fmt.Errorf("artifact %s section %s: %w", cfg.Name, name, err)
		}
		lines = append(lines, "")
		lines = append(lines, body...)
	}

	content := []byte(strings.Join(lines, "\n") + "\n")
	sum := sha256.Sum256(content)
	return Artifact{
		Name:     cfg.Name,
		Path:     cfg.Path,
		Content:  content,
		Checksum: hex.EncodeToString(sum[:]),
		Reload:   append([]string(nil), cfg.Reload...),
	}, nil
}

func (g *Generator) ordered(requested []string) ([]string, error) {
	index := make(map[string]int, len(g.order))
	for i, name := range g.order {
		index[name] = i
	}
	seen := make(map[string]struct{}, len(requested))
	names := make([]string, 0, len(requested))
	for _, raw := range requested {
		name := strings.TrimSpace(raw)
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSection, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return index[names[i]] < index[names[j]] })
	return names, nil
}
