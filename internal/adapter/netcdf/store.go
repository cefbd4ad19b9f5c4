package netcdf

import "github.com/couchcryptid/storm-cmac-service/internal/domain"

// Store exposes ReadVolume and WriteVolume as methods.
type Store struct{}

func (Store) ReadVolume(path string) (*domain.Volume, error) { return ReadVolume(path) }

func (Store) WriteVolume(path string, v *domain.Volume) error { return WriteVolume(path, v) }
