package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/schollz/melodai/ai"
)

var version string

func main() {

	app := cli.NewApp()
	app.Version = version
	app.Compiled = time.Now()
	app.Name = "melodai"
	app.Usage = "learn melodies from MIDI files and generate new ones"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
		cli.StringFlag{
			Name:  "name,n",
			Value: "melodai",
			Usage: "base name for the saved model/vocabulary/corpus",
		},
		cli.Int64Flag{
			Name:  "seed",
			Value: time.Now().UnixNano(),
			Usage: "random seed (fix it for reproducible runs)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "learn",
			Usage: "train a model from a directory of MIDI files",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "midi,m",
					Value: "midi",
					Usage: "directory of MIDI files to learn from",
				},
				cli.StringFlag{
					Name:  "checkpoints",
					Value: "checkpoints",
					Usage: "directory for weight checkpoints",
				},
				cli.StringFlag{
					Name:  "history",
					Value: "history.json",
					Usage: "file for the per-epoch loss/accuracy curve",
				},
				cli.IntFlag{
					Name:  "sequence-length",
					Value: 64,
					Usage: "context window length",
				},
				cli.IntFlag{
					Name:  "epochs",
					Value: 50,
					Usage: "training epoch budget",
				},
				cli.IntFlag{
					Name:  "batch-size",
					Value: 64,
					Usage: "mini-batch size",
				},
				cli.IntFlag{
					Name:  "hidden-units",
					Value: 256,
					Usage: "width of each recurrent layer",
				},
				cli.Float64Flag{
					Name:  "learning-rate",
					Value: 0.001,
					Usage: "Adam learning rate",
				},
				cli.Float64Flag{
					Name:  "dropout",
					Value: 0.3,
					Usage: "dropout rate during training",
				},
				cli.IntFlag{
					Name:  "patience",
					Value: 5,
					Usage: "non-improving epochs before early stop",
				},
			},
			Action: func(c *cli.Context) error {
				p := pipelineFromContext(c)
				p.Config.SequenceLength = c.Int("sequence-length")
				p.Config.Epochs = c.Int("epochs")
				p.Config.BatchSize = c.Int("batch-size")
				p.Config.HiddenUnits = c.Int("hidden-units")
				p.Config.LearningRate = c.Float64("learning-rate")
				p.Config.DropoutRate = c.Float64("dropout")
				p.Config.Patience = c.Int("patience")
				p.MidiDir = c.String("midi")
				p.CheckpointDir = c.String("checkpoints")
				p.HistoryFile = c.String("history")
				if p.CheckpointDir != "" {
					if err := os.MkdirAll(p.CheckpointDir, 0755); err != nil {
						return err
					}
				}
				return p.Learn()
			},
		},
		{
			Name:  "generate",
			Usage: "generate a MIDI file from a trained model",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out,o",
					Value: "generated.mid",
					Usage: "output MIDI file",
				},
				cli.IntFlag{
					Name:  "length",
					Value: 500,
					Usage: "number of notes to generate",
				},
				cli.Float64Flag{
					Name:  "temperature",
					Value: 1.0,
					Usage: "sampling temperature (lower is safer, higher is wilder)",
				},
				cli.Float64Flag{
					Name:  "bpm",
					Value: 120,
					Usage: "tempo of the output file",
				},
			},
			Action: func(c *cli.Context) error {
				p := pipelineFromContext(c)
				return p.Generate(c.String("out"), c.Int("length"), c.Float64("temperature"), c.Float64("bpm"))
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Print(err)
	}
}

func pipelineFromContext(c *cli.Context) *Pipeline {
	if c.GlobalBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	return &Pipeline{
		Config: ai.DefaultConfig(),
		Name:   c.GlobalString("name"),
		Seed:   c.GlobalInt64("seed"),
	}
}
