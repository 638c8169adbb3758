// Package directory holds the team directory: the mapping from
// human-readable team names to Chatwoot team IDs, with lookup tolerant
// of case, accents and Portuguese gender/number inflection.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gestao-presente/orquestra/pkg/textutil"
)

// ErrTeamNotFound is returned by Resolve when no team matches.
var ErrTeamNotFound = errors.New("team not found")

// ErrNoDefaultTeam indicates the directory is empty and no fallback
// team is configured. Fatal at startup, per the error taxonomy.
var ErrNoDefaultTeam = errors.New("directory empty and no default team configured")

// Team is one assignable human team. ID is opaque: Chatwoot returns
// numeric IDs but the directory never does arithmetic on them.
type Team struct {
	Name    string
	ID      string
	Aliases []string
}

// TeamLister is the platform-side collaborator Refresh pulls from.
type TeamLister interface {
	ListTeams(ctx context.Context) ([]Team, error)
}

// Directory is safe for concurrent use: reads are frequent (every
// classification), writes happen only at startup and on refresh.
type Directory struct {
	mu       sync.RWMutex
	teams    []Team
	index    map[string]int // normalized name/alias -> teams index
	fallback string         // configured default human team name
}

func New(defaultTeam string) *Directory {
	return &Directory{
		index:    make(map[string]int),
		fallback: defaultTeam,
	}
}

// normalizeKey folds and singularizes a name so that "Financeiras"
// and "financeiro" land on the same key.
func normalizeKey(name string) string {
	return textutil.Singularize(textutil.Fold(name))
}

// Load atomically replaces the directory contents and rebuilds the
// normalized-name index. Teams keep the platform's display names;
// folding happens only on the index keys.
func (d *Directory) Load(teams []Team) {
	index := make(map[string]int, len(teams))
	stored := make([]Team, 0, len(teams))
	for _, team := range teams {
		name := strings.TrimSpace(team.Name)
		if name == "" || team.ID == "" {
			continue
		}
		t := Team{Name: name, ID: team.ID, Aliases: team.Aliases}
		idx := len(stored)
		stored = append(stored, t)
		if _, taken := index[normalizeKey(name)]; !taken {
			index[normalizeKey(name)] = idx
		}
		for _, alias := range team.Aliases {
			key := normalizeKey(alias)
			if _, taken := index[key]; !taken && key != "" {
				index[key] = idx
			}
		}
	}

	d.mu.Lock()
	d.teams = stored
	d.index = index
	d.mu.Unlock()
}

// Refresh replaces the directory with the platform's current team list.
func (d *Directory) Refresh(ctx context.Context, lister TeamLister) error {
	teams, err := lister.ListTeams(ctx)
	if err != nil {
		return fmt.Errorf("refreshing team directory: %w", err)
	}
	d.Load(teams)
	return nil
}

// Resolve maps an informal name or phrase to a team. Lookup order:
// exact normalized name, alias, then substring containment against
// known team names (either direction, shortest team name wins).
func (d *Directory) Resolve(nameOrPhrase string) (Team, error) {
	key := normalizeKey(nameOrPhrase)
	if key == "" {
		return Team{}, ErrTeamNotFound
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if idx, ok := d.index[key]; ok {
		return d.teams[idx], nil
	}

	best := -1
	for i, team := range d.teams {
		name := normalizeKey(team.Name)
		if !strings.Contains(key, name) && !strings.Contains(name, key) {
			continue
		}
		if best == -1 || len(d.teams[i].Name) < len(d.teams[best].Name) {
			best = i
		}
	}
	if best >= 0 {
		return d.teams[best], nil
	}
	return Team{}, ErrTeamNotFound
}

// DefaultTeam returns the fallback human team: the configured name if
// it resolves, otherwise a team whose name mentions support, otherwise
// the first loaded team.
func (d *Directory) DefaultTeam() (Team, error) {
	if d.fallback != "" {
		if team, err := d.Resolve(d.fallback); err == nil {
			return team, nil
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, team := range d.teams {
		folded := textutil.Fold(team.Name)
		if strings.Contains(folded, "suporte") || strings.Contains(folded, "support") {
			return team, nil
		}
	}
	if len(d.teams) > 0 {
		return d.teams[0], nil
	}
	return Team{}, ErrNoDefaultTeam
}

// Teams returns a snapshot of the loaded teams.
func (d *Directory) Teams() []Team {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Team, len(d.teams))
	copy(out, d.teams)
	return out
}

// Names returns the canonical team names, for classifier prompts.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.teams))
	for i, team := range d.teams {
		names[i] = team.Name
	}
	return names
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.teams)
}
