// Package seed imports content-library markdown files into the store. Each
// file carries a YAML frontmatter block naming its type (pillar, template or
// idea); the markdown body fills the long-form field when the frontmatter
// leaves it empty. Imports match existing records by title, so re-running
// seed updates instead of duplicating.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"postpilot/internal/store"
)

type frontmatter struct {
	Type         string `yaml:"type"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	Audience     string `yaml:"audience"`
	Active       *bool  `yaml:"active"`
	Structure    string `yaml:"structure"`
	Prompt       string `yaml:"prompt"`
	CallToAction string `yaml:"call_to_action"`
	Summary      string `yaml:"summary"`
	Hook         string `yaml:"hook"`
	Angle        string `yaml:"angle"`
	Pillar       string `yaml:"pillar"`
}

type Summary struct {
	Pillars   int
	Templates int
	Ideas     int
	Skipped   []string
}

func (s Summary) Total() int { return s.Pillars + s.Templates + s.Ideas }

// Store is the subset of the content store the importer writes through.
type Store interface {
	ListPillars(ctx context.Context) ([]store.Pillar, error)
	UpsertPillar(ctx context.Context, pillar store.Pillar) (store.Pillar, error)
	ListTemplates(ctx context.Context) ([]store.Template, error)
	UpsertTemplate(ctx context.Context, tpl store.Template) (store.Template, error)
	UpsertIdea(ctx context.Context, idea store.Idea) (store.Idea, error)
}

// ImportDir imports every .md file directly under dir. Files that fail to
// parse are listed in Summary.Skipped; only filesystem and store failures
// are errors.
func ImportDir(ctx context.Context, m Store, dir string) (Summary, error) {
	var sum Summary
	if m == nil {
		return sum, errors.New("store is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return sum, fmt.Errorf("read seed dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return sum, fmt.Errorf("read %s: %w", name, err)
		}
		if err := importFile(ctx, m, string(data), &sum); err != nil {
			if errors.Is(err, errSkip) {
				sum.Skipped = append(sum.Skipped, name)
				continue
			}
			return sum, fmt.Errorf("import %s: %w", name, err)
		}
	}
	return sum, nil
}

var errSkip = errors.New("not importable")

func importFile(ctx context.Context, m Store, content string, sum *Summary) error {
	meta, body, ok := splitFrontmatter(content)
	if !ok {
		return errSkip
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(meta), &fm); err != nil {
		return errSkip
	}
	if strings.TrimSpace(fm.Title) == "" && strings.TrimSpace(fm.Summary) == "" {
		return errSkip
	}
	body = strings.TrimSpace(body)

	switch strings.ToLower(strings.TrimSpace(fm.Type)) {
	case "pillar":
		return importPillar(ctx, m, fm, body, sum)
	case "template":
		return importTemplate(ctx, m, fm, body, sum)
	case "idea":
		return importIdea(ctx, m, fm, body, sum)
	default:
		return errSkip
	}
}

func importPillar(ctx context.Context, m Store, fm frontmatter, body string, sum *Summary) error {
	pillar := store.Pillar{
		Title:       strings.TrimSpace(fm.Title),
		Description: strings.TrimSpace(fm.Description),
		Audience:    strings.TrimSpace(fm.Audience),
		Active:      true,
	}
	if fm.Active != nil {
		pillar.Active = *fm.Active
	}
	if pillar.Description == "" {
		pillar.Description = body
	}
	if existing, ok, err := findPillarByTitle(ctx, m, pillar.Title); err != nil {
		return err
	} else if ok {
		pillar.ID = existing.ID
	}
	if _, err := m.UpsertPillar(ctx, pillar); err != nil {
		return err
	}
	sum.Pillars++
	return nil
}

func importTemplate(ctx context.Context, m Store, fm frontmatter, body string, sum *Summary) error {
	tpl := store.Template{
		Title:        strings.TrimSpace(fm.Title),
		Structure:    strings.TrimSpace(fm.Structure),
		Prompt:       strings.TrimSpace(fm.Prompt),
		CallToAction: strings.TrimSpace(fm.CallToAction),
	}
	if tpl.Prompt == "" {
		tpl.Prompt = body
	}
	if strings.TrimSpace(tpl.Prompt) == "" {
		return errSkip
	}
	templates, err := m.ListTemplates(ctx)
	if err != nil {
		return err
	}
	for _, existing := range templates {
		if strings.EqualFold(existing.Title, tpl.Title) {
			tpl.ID = existing.ID
			break
		}
	}
	if _, err := m.UpsertTemplate(ctx, tpl); err != nil {
		return err
	}
	sum.Templates++
	return nil
}

func importIdea(ctx context.Context, m Store, fm frontmatter, body string, sum *Summary) error {
	idea := store.Idea{
		Summary: strings.TrimSpace(fm.Summary),
		Hook:    strings.TrimSpace(fm.Hook),
		Angle:   strings.TrimSpace(fm.Angle),
	}
	if idea.Summary == "" {
		idea.Summary = strings.TrimSpace(fm.Title)
	}
	if idea.Summary == "" {
		idea.Summary = body
	}
	if strings.TrimSpace(idea.Summary) == "" {
		return errSkip
	}
	if ref := strings.TrimSpace(fm.Pillar); ref != "" {
		if pillar, ok, err := findPillarByTitle(ctx, m, ref); err != nil {
			return err
		} else if ok {
			idea.PillarID = pillar.ID
		}
	}
	if _, err := m.UpsertIdea(ctx, idea); err != nil {
		return err
	}
	sum.Ideas++
	return nil
}

func findPillarByTitle(ctx context.Context, m Store, title string) (store.Pillar, bool, error) {
	pillars, err := m.ListPillars(ctx)
	if err != nil {
		return store.Pillar{}, false, err
	}
	for _, p := range pillars {
		if strings.EqualFold(strings.TrimSpace(p.Title), strings.TrimSpace(title)) {
			return p, true, nil
		}
	}
	return store.Pillar{}, false, nil
}

// splitFrontmatter returns the YAML block between the leading "---" fences
// and the remaining body. ok is false when the file has no frontmatter.
func splitFrontmatter(content string) (meta string, body string, ok bool) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", "", false
}
