package bno055

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNoProfile indicates no calibration profile has been saved.
var ErrNoProfile = errors.New("no calibration profile")

// Offsets is the raw content of the offset registers.
type Offsets [OffsetsLen]byte

// Profile is the calibration persisted between runs.
type Profile struct {
	AccOffset [3]int16 `yaml:"acc_offset"`
	MagOffset [3]int16 `yaml:"mag_offset"`
	GyrOffset [3]int16 `yaml:"gyr_offset"`
	AccRadius int16    `yaml:"acc_radius"`
	MagRadius int16    `yaml:"mag_radius"`
}

// ProfileFromOffsets decodes register content.
func ProfileFromOffsets(o Offsets) *Profile {
	word := func(n int) int16 { return int16(binary.LittleEndian.Uint16(o[n*2:])) }
	p := &Profile{AccRadius: word(9), MagRadius: word(10)}
	for i := 0; i < 3; i++ {
		p.AccOffset[i] = word(i)
		p.MagOffset[i] = word(3 + i)
		p.GyrOffset[i] = word(6 + i)
	}
	return p
}

// Offsets encodes the profile into register content.
func (p *Profile) Offsets() (o Offsets) {
	put := func(n int, v int16) { binary.LittleEndian.PutUint16(o[n*2:], uint16(v)) }
	for i := 0; i < 3; i++ {
		put(i, p.AccOffset[i])
		put(3+i, p.MagOffset[i])
		put(6+i, p.GyrOffset[i])
	}
	put(9, p.AccRadius)
	put(10, p.MagRadius)
	return
}

// ProfileStore persists a calibration profile.
type ProfileStore interface {
	// LoadProfile returns ErrNoProfile when nothing is saved.
	LoadProfile() (*Profile, error)
	SaveProfile(*Profile) error
}

// FileStore keeps the profile in a YAML file.
type FileStore struct {
	Path string
}

// LoadProfile implements ProfileStore.
func (s *FileStore) LoadProfile() (*Profile, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("calibration profile %s: %w", s.Path, err)
	}
	return &p, nil
}

// SaveProfile implements ProfileStore.
func (s *FileStore) SaveProfile(p *Profile) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0644)
}

// MemStore keeps the profile in memory.
type MemStore struct {
	Profile *Profile
}

// LoadProfile implements ProfileStore.
func (s *MemStore) LoadProfile() (*Profile, error) {
	if s.Profile == nil {
		return nil, ErrNoProfile
	}
	p := *s.Profile
	return &p, nil
}

// SaveProfile implements ProfileStore.
func (s *MemStore) SaveProfile(p *Profile) error {
	saved := *p
	s.Profile = &saved
	return nil
}
