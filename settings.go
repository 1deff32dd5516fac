package theta

import (
	"fmt"
	"math"
	"sync"

	"github.com/pkg/errors"
)

const (
	// minimum and maximum values for the log-base-2 of the nominal number of
	// entries retained by a sketch
	minimumLgNomLongs = 4
	maximumLgNomLongs = 26

	// the hash table never shrinks below 2^minLgArrLongs slots.
	minLgArrLongs = 5

	// DefaultLgNomLongs is the log-base-2 of the nominal entries used by
	// DefaultSettings.
	DefaultLgNomLongs = 12

	// DefaultSeed is the hash seed shared by every DataSketches implementation.
	// Sketches are only mergeable when they were built with the same seed.
	DefaultSeed uint64 = 9001

	// MaxThetaLong is the theta value of a sketch that has not sampled
	// anything yet.  Theta is the fraction MaxThetaLong/thetaLong of the hash
	// space that is retained.
	MaxThetaLong uint64 = math.MaxInt64
)

// ResizeFactor controls how quickly the hash table of a sketch grows toward
// its maximum size.  The value is the log-base-2 of the growth multiple.
type ResizeFactor int

const (
	ResizeX1 ResizeFactor = iota
	ResizeX2
	ResizeX4
	ResizeX8
)

func (rf ResizeFactor) lg() int {
	return int(rf)
}

// Settings are used to configure union and update sketches.
type Settings struct {
	// LgNomLongs is the log-base-2 of the nominal number of entries (k) the
	// sketch retains once it is in estimation mode.  The minimum value is 4
	// and the maximum value is 26.
	LgNomLongs int

	// Seed is the seed for the hash function.  Sketches built with different
	// seeds cannot be merged.
	Seed uint64

	// P is the up-front sampling probability.  It must be greater than 0 and
	// at most 1.  A value below 1 starts the sketch in estimation mode.
	P float32

	// ResizeFactor controls the growth of the internal hash table.
	ResizeFactor ResizeFactor
}

// DefaultSettings returns settings compatible with the defaults of the other
// DataSketches implementations.
func DefaultSettings() Settings {
	return Settings{
		LgNomLongs:   DefaultLgNomLongs,
		Seed:         DefaultSeed,
		P:            1,
		ResizeFactor: ResizeX8,
	}
}

var defaultSettings *settings
var defaultSettingsLock sync.RWMutex

var settingsCache map[Settings]*settings
var settingsCacheLock sync.RWMutex

func init() {
	settingsCache = make(map[Settings]*settings)
}

// Defaults installs settings that will be used by the zero value Union.  It
// recommended to call this function once at initialization time and never
// again.  It will return an error if the provided settings are invalid or if a
// different set of defaults has already been installed.
func Defaults(settings Settings) error {

	s, err := settings.toInternal()
	if err != nil {
		return err
	}

	defaultSettingsLock.Lock()
	defer defaultSettingsLock.Unlock()

	if defaultSettings != nil && s != defaultSettings {
		return errors.New("different default settings have already been installed")
	}

	defaultSettings = s

	return nil
}

// getDefaults will return the default settings or nil if they haven't been
// configured.
func getDefaults() *settings {
	defaultSettingsLock.RLock()
	defer defaultSettingsLock.RUnlock()
	return defaultSettings
}

type settings struct {
	lgNomLongs int
	seed       uint64
	p          float32
	rf         ResizeFactor

	// seedHash is the 16 bit fingerprint of seed stored in serialized
	// sketches.  computing it requires a murmur pass so it's done once here.
	seedHash uint16

	// startThetaLong is the theta implied by p.
	startThetaLong uint64

	// startLgArrLongs is the initial size of the hash table.
	startLgArrLongs int
}

// toInternal translates Settings to settings, validating them in the process.
// The result is cached so that equal Settings share a single instance.
func (s Settings) toInternal() (*settings, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	settingsCacheLock.RLock()
	cachedSettings := settingsCache[s]
	settingsCacheLock.RUnlock()

	if cachedSettings != nil {
		return cachedSettings, nil
	}

	seedHash, err := computeSeedHash(s.Seed)
	if err != nil {
		return nil, err
	}

	settings := settings{
		lgNomLongs:      s.LgNomLongs,
		seed:            s.Seed,
		p:               s.P,
		rf:              s.ResizeFactor,
		seedHash:        seedHash,
		startThetaLong:  thetaFromP(s.P),
		startLgArrLongs: startingSubMultiple(s.LgNomLongs+1, s.ResizeFactor.lg(), minLgArrLongs),
	}

	// install the settings.  note that if another equal set of settings had
	// been installed between our critical sections, the result is idempotent.
	settingsCacheLock.Lock()
	settingsCache[s] = &settings
	settingsCacheLock.Unlock()

	return &settings, nil
}

// validate ensures that all of the settings in s are within bounds.
func (s *Settings) validate() error {

	if s.LgNomLongs < minimumLgNomLongs {
		return fmt.Errorf("LgNomLongs is too small.  Requires at least %d but got %d", minimumLgNomLongs, s.LgNomLongs)
	} else if s.LgNomLongs > maximumLgNomLongs {
		return fmt.Errorf("LgNomLongs is too large.  Allows at most %d but got %d", maximumLgNomLongs, s.LgNomLongs)
	}

	if !(s.P > 0) {
		return fmt.Errorf("P is too small.  Requires more than 0 but got %v", s.P)
	} else if s.P > 1 {
		return fmt.Errorf("P is too large.  Allows at most 1 but got %v", s.P)
	}

	if s.ResizeFactor < ResizeX1 {
		return fmt.Errorf("ResizeFactor is too small.  Requires at least %d but got %d", ResizeX1, s.ResizeFactor)
	} else if s.ResizeFactor > ResizeX8 {
		return fmt.Errorf("ResizeFactor is too large.  Allows at most %d but got %d", ResizeX8, s.ResizeFactor)
	}

	return nil
}

// toExternal translates the internal settings back to their exported version.
func (s *settings) toExternal() Settings {
	return Settings{
		LgNomLongs:   s.lgNomLongs,
		Seed:         s.seed,
		P:            s.p,
		ResizeFactor: s.rf,
	}
}

// thetaFromP converts a sampling probability to a theta value.
func thetaFromP(p float32) uint64 {
	if p >= 1 {
		return MaxThetaLong
	}
	return uint64(float64(p) * float64(MaxThetaLong))
}

// startingSubMultiple picks a starting table size such that repeated growth by
// the resize factor lands exactly on lgTarget.
func startingSubMultiple(lgTarget, lgRF, lgMin int) int {
	if lgTarget <= lgMin {
		return lgMin
	}
	if lgRF == 0 {
		return lgTarget
	}
	return (lgTarget-lgMin)%lgRF + lgMin
}
