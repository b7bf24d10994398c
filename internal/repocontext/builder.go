// Package repocontext turns repository details into the bounded text the
// project analyzer sends to the model.
package repocontext

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

const (
	TruncationMarker = "…[truncated]"
	NoDescription    = "No description provided."
	None             = "None"
)

// Budget bounds each section and the whole context, in bytes. Byte budgets
// also bound the character count.
type Budget struct {
	MaxContextChars int
	MaxReadmeChars  int
	MaxConfigChars  int
	MaxTreeEntries  int
}

func DefaultBudget() Budget {
	return Budget{
		MaxContextChars: 12000,
		MaxReadmeChars:  4000,
		MaxConfigChars:  1500,
		MaxTreeEntries:  200,
	}
}

type Builder struct {
	budget Budget
}

func NewBuilder(b Budget) *Builder {
	def := DefaultBudget()
	if b.MaxContextChars <= 0 {
		b.MaxContextChars = def.MaxContextChars
	}
	if b.MaxReadmeChars <= 0 {
		b.MaxReadmeChars = def.MaxReadmeChars
	}
	if b.MaxConfigChars <= 0 {
		b.MaxConfigChars = def.MaxConfigChars
	}
	if b.MaxTreeEntries <= 0 {
		b.MaxTreeEntries = def.MaxTreeEntries
	}
	return &Builder{budget: b}
}

func (b *Builder) Budget() Budget { return b.budget }

// Build renders details in a fixed order: languages, topics, config files,
// directory listing, README, description. It never fails; missing fields
// render as explicit markers.
func (b *Builder) Build(d *models.RepositoryDetails) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Repo: %s\n", d.FullName())

	sb.WriteString("Langs: ")
	if len(d.Languages) == 0 {
		sb.WriteString(None)
	} else {
		parts := make([]string, 0, len(d.Languages))
		for _, l := range d.Languages {
			parts = append(parts, fmt.Sprintf("%s (%d bytes)", l.Name, l.Bytes))
		}
		sb.WriteString(strings.Join(parts, ", "))
	}
	sb.WriteString("\n")

	sb.WriteString("Topics: ")
	if len(d.Topics) == 0 {
		sb.WriteString(None)
	} else {
		sb.WriteString(strings.Join(d.Topics, ", "))
	}
	sb.WriteString("\n")

	sb.WriteString("Config files:")
	if len(d.ConfigFiles) == 0 {
		sb.WriteString(" " + None + "\n")
	} else {
		sb.WriteString("\n")
		names := make([]string, 0, len(d.ConfigFiles))
		for name := range d.ConfigFiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n", name, Truncate(strings.TrimSpace(d.ConfigFiles[name]), b.budget.MaxConfigChars))
		}
	}

	sb.WriteString("Files:")
	if len(d.RootTree) == 0 {
		sb.WriteString(" " + None + "\n")
	} else {
		sb.WriteString("\n")
		for i, e := range d.RootTree {
			if i == b.budget.MaxTreeEntries {
				fmt.Fprintf(&sb, "%s (%d more)\n", TruncationMarker, len(d.RootTree)-i)
				break
			}
			if e.Type == "tree" {
				fmt.Fprintf(&sb, "%s/\n", e.Path)
			} else {
				fmt.Fprintf(&sb, "%s\n", e.Path)
			}
		}
	}

	sb.WriteString("README:\n")
	if d.Readme == nil || strings.TrimSpace(*d.Readme) == "" {
		sb.WriteString(None + "\n")
	} else {
		sb.WriteString(Truncate(strings.TrimSpace(*d.Readme), b.budget.MaxReadmeChars))
		sb.WriteString("\n")
	}

	sb.WriteString("Desc: ")
	if d.Description == nil || strings.TrimSpace(*d.Description) == "" {
		sb.WriteString(NoDescription)
	} else {
		sb.WriteString(strings.TrimSpace(*d.Description))
	}

	return Truncate(sb.String(), b.budget.MaxContextChars)
}

// Truncate keeps the head of s so that the result, marker included, is at
// most limit bytes. Cuts never split a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	keep := limit - len(TruncationMarker)
	if keep <= 0 {
		return headBytes(TruncationMarker, limit)
	}
	return headBytes(s, keep) + TruncationMarker
}

func headBytes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Fingerprint identifies a context for caching: two repositories that
// render to the same context share an analysis.
func Fingerprint(context string) string {
	sum := sha256.Sum256([]byte(context))
	return hex.EncodeToString(sum[:])[:16]
}
