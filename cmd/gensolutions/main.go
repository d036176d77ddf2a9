// Command gensolutions writes a synthetic solver log tree for trying the
// train and score commands without a real solver.
//
// Each run folder gets one sol-NNN.json per instance. Trajectories are
// random walks; wider, more erratic walks die earlier, so a fitted model
// has signal to find.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type solution struct {
	InstanceIndex  int            `json:"instance_index"`
	BirthIter      int            `json:"birth_iter"`
	DeathIter      int            `json:"death_iter"`
	SurvivalIters  int            `json:"survival_iters"`
	Censored       bool           `json:"censored"`
	PreVNDCost     float64        `json:"pre_vnd_cost"`
	PostVNDCost    float64        `json:"post_vnd_cost"`
	PreVNDCoords   orb.LineString `json:"pre_vnd_coords"`
	PostVNDFitness float64        `json:"post_vnd_fitness"`
	FinalFitness   float64        `json:"final_fitness"`
}

func main() {
	var (
		root      = flag.String("out", "solutions/ml_logs", "Log root to write")
		runs      = flag.Int("runs", 3, "Number of run folders")
		instances = flag.Int("instances", 40, "Solutions per run")
		horizon   = flag.Int("horizon", 200, "Iteration cap; longer lives are censored")
		seed      = flag.Uint64("seed", 1, "Random seed")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	total := 0
	for r := 0; r < *runs; r++ {
		dir := filepath.Join(*root, fmt.Sprintf("run-%03d", r))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create run folder")
		}

		for i := 0; i < *instances; i++ {
			sol := generateSolution(rng, i, *horizon)
			data, err := json.MarshalIndent(sol, "", "  ")
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to marshal solution")
			}
			path := filepath.Join(dir, fmt.Sprintf("sol-%03d.json", i))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				log.Fatal().Err(err).Str("path", path).Msg("Failed to write solution")
			}
			total++
		}
	}

	log.Info().Int("solutions", total).Str("root", *root).Msg("Synthetic run logs generated")
}

func generateSolution(rng *rand.Rand, index, horizon int) solution {
	points := rng.IntN(25)
	step := 0.5 + rng.Float64()*2
	coords := make(orb.LineString, 0, points)
	x, y := 0.0, 0.0
	var spread float64
	for p := 0; p < points; p++ {
		coords = append(coords, orb.Point{x, y})
		dx, dy := rng.NormFloat64()*step, rng.NormFloat64()*step
		x += dx
		y += dy
		spread += math.Hypot(dx, dy)
	}

	birth := rng.IntN(horizon / 2)
	hazard := 0.01 + 0.002*spread
	life := int(rng.ExpFloat64() / hazard)
	censored := birth+life >= horizon
	if censored {
		life = horizon - birth
	}

	cost := 1000 + spread*15 + rng.NormFloat64()*20
	refined := cost * (0.9 + rng.Float64()*0.08)
	return solution{
		InstanceIndex:  index,
		BirthIter:      birth,
		DeathIter:      birth + life,
		SurvivalIters:  life,
		Censored:       censored,
		PreVNDCost:     cost,
		PostVNDCost:    refined,
		PreVNDCoords:   coords,
		PostVNDFitness: 1 / refined,
		FinalFitness:   1 / refined,
	}
}
