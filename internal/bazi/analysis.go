package bazi

import (
	"embed"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed analyses/*.md
var embeddedAnalyses embed.FS

// AnalysisPattern matches the analysis documents inside a directory.
const AnalysisPattern = "baziprofiledata*.md"

// AnalysisDoc is one prewritten chart analysis.
type AnalysisDoc struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// AnalysisLibrary samples prewritten analyses at random.
type AnalysisLibrary struct {
	docs []AnalysisDoc

	mu  sync.Mutex
	rnd *rand.Rand
}

// DefaultAnalysisLibrary serves the analyses compiled into the binary.
func DefaultAnalysisLibrary() *AnalysisLibrary {
	sub, err := fs.Sub(embeddedAnalyses, "analyses")
	if err != nil {
		return &AnalysisLibrary{}
	}
	lib, err := NewAnalysisLibrary(sub, nil)
	if err != nil {
		return &AnalysisLibrary{}
	}
	return lib
}

// LoadAnalysisDir reads analyses from dir, falling back to the embedded set
// when dir is empty.
func LoadAnalysisDir(dir string) (*AnalysisLibrary, error) {
	if strings.TrimSpace(dir) == "" {
		return DefaultAnalysisLibrary(), nil
	}
	return NewAnalysisLibrary(os.DirFS(dir), nil)
}

// NewAnalysisLibrary loads every AnalysisPattern file at the root of fsys.
// A nil src uses the shared runtime generator.
func NewAnalysisLibrary(fsys fs.FS, src rand.Source) (*AnalysisLibrary, error) {
	names, err := fs.Glob(fsys, AnalysisPattern)
	if err != nil {
		return nil, fmt.Errorf("glob analyses: %w", err)
	}
	sort.Strings(names)

	lib := &AnalysisLibrary{docs: make([]AnalysisDoc, 0, len(names))}
	if src != nil {
		lib.rnd = rand.New(src)
	}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read analysis %s: %w", name, err)
		}
		lib.docs = append(lib.docs, AnalysisDoc{
			Name:    path.Base(name),
			Content: strings.TrimSpace(string(data)),
		})
	}
	return lib, nil
}

// Len returns the number of loaded analyses.
func (l *AnalysisLibrary) Len() int {
	if l == nil {
		return 0
	}
	return len(l.docs)
}

// Pick returns a random analysis, or ErrLookupMiss when none are loaded.
func (l *AnalysisLibrary) Pick() (AnalysisDoc, error) {
	if l == nil || len(l.docs) == 0 {
		return AnalysisDoc{}, fmt.Errorf("analysis library: %w", ErrLookupMiss)
	}
	if l.rnd == nil {
		return l.docs[rand.IntN(len(l.docs))], nil
	}
	l.mu.Lock()
	i := l.rnd.IntN(len(l.docs))
	l.mu.Unlock()
	return l.docs[i], nil
}
