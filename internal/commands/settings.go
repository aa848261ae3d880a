package commands

import (
	"slices"
	"sort"
	"sync"
)

// Keys que /config acepta.
var configKeys = []string{"language", "log_channel", "max_players", "timezone", "welcome_message"}

// Settings guarda la configuración por servidor en memoria.
type Settings struct {
	mu     sync.RWMutex
	values map[string]map[string]string
	roles  map[string][]string
}

func NewSettings() *Settings {
	return &Settings{values: make(map[string]map[string]string), roles: make(map[string][]string)}
}

func (s *Settings) Set(guildID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[guildID]
	if !ok {
		m = make(map[string]string)
		s.values[guildID] = m
	}
	m[key] = value
}

func (s *Settings) Get(guildID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[guildID][key]
	return v, ok
}

// All devuelve las keys seteadas, ordenadas.
func (s *Settings) All(guildID string) [][2]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][2]string, 0, len(s.values[guildID]))
	for k, v := range s.values[guildID] {
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// AddRole devuelve false si el rol ya estaba.
func (s *Settings) AddRole(guildID, roleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.roles[guildID], roleID) {
		return false
	}
	s.roles[guildID] = append(s.roles[guildID], roleID)
	return true
}

func (s *Settings) Roles(guildID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.roles[guildID])
}
