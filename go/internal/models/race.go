package models

// Race is an allocatable item from the race catalog.
type Race string

func (r Race) String() string {
	return string(r)
}

// RaceInfo holds the display metadata for a race.
type RaceInfo struct {
	Name  Race   `json:"name" yaml:"name"`
	Emoji string `json:"emoji" yaml:"emoji"`
	Blurb string `json:"blurb" yaml:"blurb"`
}
