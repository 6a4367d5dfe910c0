// Package devices enumerates media inputs and remembers the user's choice.
package devices

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// PreferenceStore persists the device preference across sessions.
type PreferenceStore interface {
	SaveDevicePreference(pref domain.DevicePreference) error
	LoadDevicePreference() (domain.DevicePreference, error)
	ClearDevicePreference() error
}

// Registry is the device registry: permission probe, enumeration and
// preference resolution against the current device set.
type Registry struct {
	prober core.MediaProber
	source core.DeviceSource
	prefs  PreferenceStore
}

func NewRegistry(prober core.MediaProber, source core.DeviceSource, prefs PreferenceStore) *Registry {
	return &Registry{prober: prober, source: source, prefs: prefs}
}

// Enumerate lists the current audio/video inputs. The permission probe
// runs first, every time: enumeration without a prior grant yields
// unlabeled results on most platforms.
func (r *Registry) Enumerate(ctx context.Context) (domain.DeviceList, error) {
	if err := r.prober.ProbeMediaAccess(ctx); err != nil {
		return domain.DeviceList{}, err
	}
	audio, err := r.source.AudioInputs(ctx)
	if err != nil {
		return domain.DeviceList{}, fmt.Errorf("enumerate audio inputs: %w", err)
	}
	video, err := r.source.VideoInputs(ctx)
	if err != nil {
		return domain.DeviceList{}, fmt.Errorf("enumerate video inputs: %w", err)
	}
	return domain.DeviceList{AudioDevices: audio, VideoDevices: video}, nil
}

// SavePreference persists the selection; an empty selection clears the
// stored record.
func (r *Registry) SavePreference(pref domain.DevicePreference) error {
	if pref.Empty() {
		return r.prefs.ClearDevicePreference()
	}
	return r.prefs.SaveDevicePreference(pref)
}

// LoadPreference never fails; absent or unreadable storage yields an
// empty preference.
func (r *Registry) LoadPreference() domain.DevicePreference {
	pref, err := r.prefs.LoadDevicePreference()
	if err != nil {
		log.Warn().Str("module", "devices").Err(err).Msg("load device preference")
		return domain.DevicePreference{}
	}
	return pref
}

// ResolveConstraints maps the stored preference against the current
// enumeration. Stale ids are expected: a previously chosen device may be
// gone, in which case that kind falls back to the platform default.
func (r *Registry) ResolveConstraints(ctx context.Context) (core.MediaConstraints, error) {
	list, err := r.Enumerate(ctx)
	if err != nil {
		return core.MediaConstraints{}, err
	}

	constraints := core.MediaConstraints{Audio: true, Video: true}
	pref := r.LoadPreference()
	if pref.AudioDeviceID != "" {
		if list.HasAudio(pref.AudioDeviceID) {
			constraints.AudioDeviceID = pref.AudioDeviceID
		} else {
			log.Info().Str("module", "devices").Str("device", pref.AudioDeviceID).Msg("preferred audio device gone, using default")
		}
	}
	if pref.VideoDeviceID != "" {
		if list.HasVideo(pref.VideoDeviceID) {
			constraints.VideoDeviceID = pref.VideoDeviceID
		} else {
			log.Info().Str("module", "devices").Str("device", pref.VideoDeviceID).Msg("preferred video device gone, using default")
		}
	}
	return constraints, nil
}
