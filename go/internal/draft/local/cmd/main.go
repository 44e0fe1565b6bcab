package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/local"
	"github.com/mcdev12/racedraft/go/internal/models"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const (
	actionReroll = "Reroll options"
	actionSkip   = "Skip player"
	actionQuit   = "Save and quit"
)

func main() {
	stateFile := pflag.StringP("state-file", "f", "racedraft_session.json", "where the session is saved between runs")
	exportFile := pflag.StringP("export", "o", "racedraft_picks.json", "where the final picks are exported")
	seed := pflag.Uint64("seed", 0, "seed for the option sampler (0 picks a random seed)")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	src := engine.DefaultSource
	if *seed != 0 {
		src = engine.NewSeededSource(*seed)
	}

	session := local.NewSession(catalog.Default(), src, clockwork.NewRealClock())
	if err := session.Load(*stateFile); err != nil {
		pterm.Warning.Printfln("Could not load saved session: %v", err)
	}

	if err := run(session, *stateFile, *exportFile); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(session *local.Session, stateFile, exportFile string) error {
	pterm.DefaultHeader.WithFullWidth().Println("Race Draft")

	for {
		if err := session.Save(stateFile); err != nil {
			log.Error().Err(err).Str("path", stateFile).Msg("failed to save session")
		}

		switch session.Status() {
		case "":
			if err := setup(session); err != nil {
				return err
			}
		case models.DraftStatusPending:
			if err := session.Start(); err != nil {
				return err
			}
		case models.DraftStatusActive:
			quit, err := turn(session)
			if err != nil {
				return err
			}
			if quit {
				pterm.Info.Printfln("Progress saved to %s", stateFile)
				return session.Save(stateFile)
			}
		case models.DraftStatusComplete:
			return finish(session, stateFile, exportFile)
		}
	}
}

func setup(session *local.Session) error {
	countText, err := pterm.DefaultInteractiveTextInput.
		WithDefaultText(fmt.Sprintf("Number of players (1-%d)", local.MaxPlayers)).
		WithDefaultValue("4").
		Show()
	if err != nil {
		return err
	}
	count, err := strconv.Atoi(strings.TrimSpace(countText))
	if err != nil || count < 1 || count > local.MaxPlayers {
		pterm.Warning.Printfln("Enter a number between 1 and %d", local.MaxPlayers)
		return nil
	}

	names := make([]string, count)
	for i := range names {
		names[i], err = pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("Player %d name", i+1)).
			Show()
		if err != nil {
			return err
		}
	}

	var excluded []models.Race
	exclude, err := pterm.DefaultInteractiveConfirm.
		WithDefaultText("Exclude any races from the draft?").
		WithDefaultValue(false).
		Show()
	if err != nil {
		return err
	}
	if exclude {
		options := make([]string, 0, catalog.Default().Len())
		for _, r := range catalog.Default().Races() {
			options = append(options, r.String())
		}
		selected, err := pterm.DefaultInteractiveMultiselect.
			WithOptions(options).
			WithDefaultText("Races to exclude").
			Show()
		if err != nil {
			return err
		}
		for _, s := range selected {
			excluded = append(excluded, models.Race(s))
		}
	}

	return session.Setup(names, excluded)
}

// turn runs one prompt for the active player. It reports whether the
// operator asked to quit.
func turn(session *local.Session) (bool, error) {
	active := session.Active()
	players := session.Players()
	pterm.DefaultSection.Printfln("%s's turn (%d / %d)", active.Name, active.TurnPosition+1, len(players))

	labels := make(map[string]models.Race)
	var choices []string
	for _, r := range session.Options() {
		info := catalog.Default().Info(r)
		label := fmt.Sprintf("%s %s - %s", info.Emoji, info.Name, info.Blurb)
		labels[label] = r
		choices = append(choices, label)
	}
	choices = append(choices, actionReroll, actionSkip, actionQuit)

	choice, err := pterm.DefaultInteractiveSelect.
		WithOptions(choices).
		WithDefaultText("Pick a race").
		WithMaxHeight(len(choices)).
		Show()
	if err != nil {
		return false, err
	}

	switch choice {
	case actionReroll:
		_, err := session.Reroll()
		return false, err
	case actionSkip:
		skipped, err := session.Skip(confirm)
		if skipped {
			pterm.Warning.Printfln("%s was skipped", active.Name)
		}
		return false, err
	case actionQuit:
		return true, nil
	}

	race := labels[choice]
	if err := session.Pick(race); err != nil {
		if errors.Is(err, engine.ErrUnavailable) {
			pterm.Warning.Println(err)
			return false, nil
		}
		return false, err
	}
	pterm.Success.Printfln("%s drafted %s", active.Name, race)
	return false, nil
}

func finish(session *local.Session, stateFile, exportFile string) error {
	result, err := session.Result()
	if err != nil {
		return err
	}

	data := pterm.TableData{{"#", "Player", "Race"}}
	for _, r := range result {
		race := "-"
		if r.Race != nil {
			info := catalog.Default().Info(*r.Race)
			race = fmt.Sprintf("%s %s", info.Emoji, info.Name)
		}
		data = append(data, []string{strconv.Itoa(r.TurnPosition + 1), r.Name, race})
	}
	pterm.DefaultSection.Println("Draft complete")
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	f, err := os.Create(exportFile)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()
	if err := session.Export(f); err != nil {
		return fmt.Errorf("failed to export picks: %w", err)
	}
	pterm.Info.Printfln("Picks exported to %s", exportFile)

	if session.Reset(confirm) {
		return session.Save(stateFile)
	}
	return nil
}

func confirm(prompt string) bool {
	ok, err := pterm.DefaultInteractiveConfirm.WithDefaultText(prompt).Show()
	return err == nil && ok
}
