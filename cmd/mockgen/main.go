package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"worklog-report/cmd/mockgen/engine"
	"worklog-report/internal/jira"
	"worklog-report/internal/tempo"
)

func main() {
	seed := flag.Int64("seed", 1, "Random seed; the same seed yields the same dataset")
	users := flag.Int("users", 3, "Number of users")
	epics := flag.Int("epics", 4, "Number of epics")
	stories := flag.Int("stories", 5, "Stories per epic")
	subtasks := flag.Int("subtasks", 3, "Sub-tasks per story")
	to := flag.String("to", time.Now().Format(tempo.DateLayout), "Last day with worklogs (YYYY-MM-DD)")
	days := flag.Int("days", 30, "Length of the worklog window in days")
	outDir := flag.String("out", "./.cache", "Output directory for the dataset")
	in := flag.String("in", "", "Serve an existing dataset file instead of generating one")
	serve := flag.String("serve", "", "Listen address for the fake Jira and Tempo API, e.g. :8089")
	flag.Parse()

	var ds *engine.Dataset
	if *in != "" {
		loaded, err := engine.Load(*in)
		if err != nil {
			fmt.Printf("Failed to load dataset: %v\n", err)
			os.Exit(1)
		}
		ds = loaded
	} else {
		end, err := time.Parse(tempo.DateLayout, *to)
		if err != nil {
			fmt.Printf("Invalid -to date: %v\n", err)
			os.Exit(1)
		}
		cfg := engine.GeneratorConfig{
			Seed:             *seed,
			Users:            *users,
			Epics:            *epics,
			StoriesPerEpic:   *stories,
			SubtasksPerStory: *subtasks,
			From:             end.AddDate(0, 0, -*days),
			To:               end,
		}
		fmt.Printf("Generating dataset (seed %d, %d users, %d epics) to %s...\n", cfg.Seed, cfg.Users, cfg.Epics, *outDir)
		ds = engine.Generate(cfg)

		path, err := engine.Save(*outDir, ds)
		if err != nil {
			fmt.Printf("Failed to save mock data: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d issues and %d worklogs to %s\n", len(ds.Issues), len(ds.Worklogs), path)
	}

	if *serve == "" {
		fmt.Println("Done.")
		return
	}

	fmt.Printf("Serving fake API on %s (JIRA_URL=http://localhost%s TEMPO_URL=http://localhost%s%s)\n", *serve, *serve, *serve, engine.TempoPrefix)
	if err := http.ListenAndServe(*serve, engine.NewServer(ds, jira.DefaultFieldMap())); err != nil {
		fmt.Printf("Server stopped: %v\n", err)
		os.Exit(1)
	}
}
