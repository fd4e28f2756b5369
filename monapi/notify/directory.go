package notify

import (
	"context"
	"sort"
)

// User is a notify recipient with an address per channel.
type User struct {
	ID       int64  `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Phone    string `json:"phone" yaml:"phone"`
	Email    string `json:"email" yaml:"email"`
	IM       string `json:"im" yaml:"im"`
}

// Team groups users.
type Team struct {
	ID      int64   `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Members []int64 `json:"members" yaml:"members"`
}

// Directory resolves recipient ids.
type Directory interface {
	Users(ctx context.Context, ids []int64) ([]User, error)
	TeamMembers(ctx context.Context, teamIDs []int64) ([]int64, error)
}

// StaticDirectory is a Directory loaded from configuration.
type StaticDirectory struct {
	users map[int64]User
	teams map[int64][]int64
}

// NewStaticDirectory indexes users and teams by id.
func NewStaticDirectory(users []User, teams []Team) *StaticDirectory {
	d := &StaticDirectory{
		users: make(map[int64]User, len(users)),
		teams: make(map[int64][]int64, len(teams)),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	for _, t := range teams {
		d.teams[t.ID] = t.Members
	}
	return d
}

// Users returns the known users among ids, ordered by id. Unknown ids are
// skipped.
func (d *StaticDirectory) Users(ctx context.Context, ids []int64) ([]User, error) {
	out := make([]User, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		u, ok := d.users[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *StaticDirectory) TeamMembers(ctx context.Context, teamIDs []int64) ([]int64, error) {
	var out []int64
	for _, id := range teamIDs {
		out = append(out, d.teams[id]...)
	}
	return out, nil
}
