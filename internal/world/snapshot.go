// Package world defines the narrow contract this server needs from a world
// implementation: just enough to answer a freshly logged-in client's
// StartGame. Chunk generation, persistence, and entity simulation are out
// of scope and live entirely behind this interface.
package world

import "github.com/nostalgia-server/nostalgia/internal/mcpe"

// Snapshot is the external collaborator a connection handler asks for world
// state when a client finishes logging in.
type Snapshot interface {
	Seed() int32
	GeneratorVersion() int32
	Gamemode() int32
	SpawnPosition() mcpe.Vector3
}

// Static is a fixed-spawn Snapshot, standing in for a real world loader.
type Static struct {
	WorldSeed    int32
	GenVersion   int32
	GameMode     int32
	Spawn        mcpe.Vector3
}

func (s *Static) Seed() int32                    { return s.WorldSeed }
func (s *Static) GeneratorVersion() int32         { return s.GenVersion }
func (s *Static) Gamemode() int32                 { return s.GameMode }
func (s *Static) SpawnPosition() mcpe.Vector3     { return s.Spawn }

// NewDemoWorld matches the original reference server's hardcoded spawn: a
// flat survival world seeded at 0, spawning the player at (128, 72, 128).
func NewDemoWorld() *Static {
	return &Static{
		WorldSeed:  0,
		GenVersion: 0,
		GameMode:   0,
		Spawn:      mcpe.Vector3{X: 128, Y: 72, Z: 128},
	}
}
