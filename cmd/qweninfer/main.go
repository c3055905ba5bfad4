// Command qweninfer is a thin example CLI over the qwen package's Unified
// Loader, adapted from the teacher's single-shot main.go into a small
// cobra command so model dir, prompt, and sampling parameters are flags
// instead of edits to source.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scriptmaster/qwen-infer-go/qwen"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		modelDir    string
		prompt      string
		maxNew      int
		temperature float64
		topK        int
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "qweninfer",
		Short: "Run a single prompt through a compiled Qwen ONNX model",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			if lvl, err := logrus.ParseLevel(logLevel); err == nil {
				log.SetLevel(lvl)
			}

			runner, err := qwen.Load(qwen.LoadOptions{ModelDir: modelDir, Log: log})
			if err != nil {
				return err
			}

			eosTokenID := int64(-1)
			if hf, err := qwen.LoadHFConfig(modelDir); err == nil {
				eosTokenID = hf.EOSTokenID
			}

			tokens, err := runner.Generate(context.Background(), prompt, maxNew, temperature, topK, eosTokenID)
			if err != nil {
				return err
			}

			text, err := runner.Decode(tokens, true)
			if err != nil {
				return err
			}

			fmt.Println(text)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelDir, "model-dir", "", "directory holding the compiled ONNX components")
	cmd.Flags().StringVar(&prompt, "prompt", "What is the third planet in our solar system?", "prompt text")
	cmd.Flags().IntVar(&maxNew, "max-new-tokens", 64, "maximum number of tokens to generate")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature (0 = greedy)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "top-k sampling cutoff (0 = disabled)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "logrus level")
	cmd.MarkFlagRequired("model-dir")

	return cmd
}
