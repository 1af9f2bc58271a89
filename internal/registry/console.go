package registry

import "github.com/veranemoloko/retro-installer/internal/domain"

// DefaultExtension is used for consoles without a known file format.
const DefaultExtension = "bin"

// UnpackRule says the download is a Container holding the playable file,
// the first entry ending in .Entry.
type UnpackRule struct {
	Container string `toml:"Container"`
	Entry     string `toml:"Entry"`
}

// Emulator describes how a console's games are launched.
type Emulator struct {
	Name          string   `toml:"Name"`
	Binary        string   `toml:"Binary"`
	URL           string   `toml:"URL"`
	RequiresBios  bool     `toml:"RequiresBios"`
	BiosFiles     []string `toml:"BiosFiles"`
	LaunchCommand string   `toml:"LaunchCommand"`
}

// Console is one registry entry.
type Console struct {
	Code         string
	Name         string
	Manufacturer string
	Release      string
	Generation   int
	Formats      []string
	Extension    string
	Unpack       *UnpackRule
	Emulator     Emulator
	Games        map[string]domain.SourceDescriptor
	Romheaven    bool
}

// GameEntry is a named game and where to fetch it from.
type GameEntry struct {
	Name   string                  `json:"name"`
	Source domain.SourceDescriptor `json:"source"`
}

func (c Console) clone() Console {
	out := c
	out.Formats = append([]string(nil), c.Formats...)
	out.Emulator.BiosFiles = append([]string(nil), c.Emulator.BiosFiles...)
	if c.Unpack != nil {
		rule := *c.Unpack
		out.Unpack = &rule
	}
	out.Games = make(map[string]domain.SourceDescriptor, len(c.Games))
	for name, src := range c.Games {
		out.Games[name] = src
	}
	return out
}

var builtinConsoles = []Console{
	{Code: "NES", Name: "Nintendo Entertainment System", Manufacturer: "Nintendo", Extension: "nes"},
	{Code: "SNES", Name: "Super Nintendo", Manufacturer: "Nintendo", Extension: "sfc"},
	{Code: "SFC", Name: "Super Famicom", Manufacturer: "Nintendo", Extension: "sfc"},
	{Code: "N64", Name: "Nintendo 64", Manufacturer: "Nintendo", Extension: "z64"},
	{Code: "GB", Name: "Game Boy", Manufacturer: "Nintendo", Extension: "gb"},
	{Code: "GBC", Name: "Game Boy Color", Manufacturer: "Nintendo", Extension: "gbc"},
	{Code: "GBA", Name: "Game Boy Advance", Manufacturer: "Nintendo", Extension: "gba"},
	{Code: "GC", Name: "GameCube", Manufacturer: "Nintendo", Extension: "iso"},
	{Code: "WII", Name: "Wii", Manufacturer: "Nintendo", Extension: "iso"},
	{Code: "DS", Name: "Nintendo DS", Manufacturer: "Nintendo", Extension: "nds"},
	{Code: "3DS", Name: "Nintendo 3DS", Manufacturer: "Nintendo", Extension: "3ds"},
	{
		Code: "SWITCH", Name: "Nintendo Switch", Manufacturer: "Nintendo", Extension: "xci",
		Unpack: &UnpackRule{Container: "zip", Entry: "xci"},
	},
	{Code: "PS1", Name: "PlayStation", Manufacturer: "Sony", Extension: "bin"},
	{Code: "PS2", Name: "PlayStation 2", Manufacturer: "Sony", Extension: "iso"},
	{Code: "PSP", Name: "PlayStation Portable", Manufacturer: "Sony", Extension: "iso"},
	{Code: "GENESIS", Name: "Sega Genesis", Manufacturer: "Sega", Extension: "bin"},
	{Code: "SMS", Name: "Sega Master System", Manufacturer: "Sega", Extension: "sms"},
	{Code: "GG", Name: "Game Gear", Manufacturer: "Sega", Extension: "gg"},
	{Code: "ARCADE", Name: "Arcade", Extension: "zip"},
}
