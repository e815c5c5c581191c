package orchestrator

import (
	"github.com/randomizedcoder/go-seed-swarm/internal/process"
)

// padChar fills the space around a word in a fun seed.
const padChar = '1'

// padBase is the weighting base: the worker's alphabet minus the filler.
const padBase = int64(len(process.SeedAlphabet) - 1)

// SearchTask is one step of a fun-seed sequence.
type SearchTask struct {
	// Seed is the padded starting seed.
	Seed string

	// RightPad is the number of filler characters after the word.
	RightPad int

	// N bounds the number of seeds searched for this step.
	N int64
}

// GenerateFunSeeds expands words into padded seeds. For each word and each
// total padding from 1 up to the room left in a seed, every split with at
// least one trailing filler is produced. Duplicates keep their first
// position.
func GenerateFunSeeds(words []string) []SearchTask {
	var tasks []SearchTask
	seen := make(map[SearchTask]bool)

	for _, word := range words {
		maxPad := process.MaxSeedLength - len(word)
		if maxPad < 1 {
			continue
		}

		for total := 1; total <= maxPad; total++ {
			for left := 0; left < total; left++ {
				right := total - left
				seed := pad(left) + word + pad(right)
				if len(seed) > process.MaxSeedLength {
					continue
				}

				task := SearchTask{Seed: seed, RightPad: right, N: weight(right)}
				if seen[task] {
					continue
				}
				seen[task] = true
				tasks = append(tasks, task)
			}
		}
	}
	return tasks
}

func pad(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = padChar
	}
	return string(b)
}

// weight returns padBase^right, or padBase when there is no right padding.
func weight(right int) int64 {
	if right <= 0 {
		return padBase
	}
	n := int64(1)
	for i := 0; i < right; i++ {
		n *= padBase
	}
	return n
}
