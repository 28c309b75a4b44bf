// Package catalog loads the lesson and vocabulary catalog.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/dayplan/internal/model"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// ErrUnknownLesson is returned when a lesson id cannot be resolved.
var ErrUnknownLesson = errors.New("unknown lesson")

type rawLesson struct {
	ID         string `yaml:"id"`
	Cluster    string `yaml:"cluster"`
	Title      string `yaml:"title"`
	Difficulty string `yaml:"difficulty"`
	Minutes    int    `yaml:"minutes"`
}

type rawFile struct {
	Lessons []rawLesson       `yaml:"lessons"`
	Cards   []model.VocabCard `yaml:"cards"`
}

// Catalog is a validated, read-only content catalog.
type Catalog struct {
	lessons   []model.LessonMeta
	byID      map[string]model.LessonMeta
	byCluster map[model.Cluster][]model.LessonMeta
	cards     []model.VocabCard
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path loads the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var raw rawFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{
		byID:      make(map[string]model.LessonMeta, len(raw.Lessons)),
		byCluster: map[model.Cluster][]model.LessonMeta{},
	}
	for i, rl := range raw.Lessons {
		lesson, err := validateLesson(rl)
		if err != nil {
			return nil, fmt.Errorf("lesson %d: %w", i, err)
		}
		if _, dup := c.byID[lesson.ID]; dup {
			return nil, fmt.Errorf("lesson %d: duplicate id %q", i, lesson.ID)
		}
		c.lessons = append(c.lessons, lesson)
		c.byID[lesson.ID] = lesson
		c.byCluster[lesson.Cluster] = append(c.byCluster[lesson.Cluster], lesson)
	}

	seen := map[string]bool{}
	for i, card := range raw.Cards {
		card.ID = strings.TrimSpace(card.ID)
		if card.ID == "" {
			return nil, fmt.Errorf("card %d: missing id", i)
		}
		if seen[card.ID] {
			return nil, fmt.Errorf("card %d: duplicate id %q", i, card.ID)
		}
		if card.Weight < 0 {
			return nil, fmt.Errorf("card %q: weight must be >= 0", card.ID)
		}
		seen[card.ID] = true
		c.cards = append(c.cards, card)
	}
	return c, nil
}

func validateLesson(rl rawLesson) (model.LessonMeta, error) {
	id := strings.TrimSpace(rl.ID)
	if id == "" {
		return model.LessonMeta{}, fmt.Errorf("missing id")
	}
	cluster, err := model.ParseCluster(rl.Cluster)
	if err != nil {
		return model.LessonMeta{}, fmt.Errorf("%s: %w", id, err)
	}
	diff, err := model.ParseDifficulty(rl.Difficulty)
	if err != nil {
		return model.LessonMeta{}, fmt.Errorf("%s: %w", id, err)
	}
	return model.LessonMeta{
		ID:         id,
		Cluster:    cluster,
		Title:      rl.Title,
		Difficulty: diff,
		Minutes:    rl.Minutes,
	}, nil
}

// LessonsForCluster returns the cluster's lessons in catalog order.
func (c *Catalog) LessonsForCluster(cluster model.Cluster) []model.LessonMeta {
	return append([]model.LessonMeta(nil), c.byCluster[cluster]...)
}

// ResolveLessonReference looks up a lesson by id.
func (c *Catalog) ResolveLessonReference(_ context.Context, lessonID string) (model.LessonMeta, error) {
	lesson, ok := c.byID[lessonID]
	if !ok {
		return model.LessonMeta{}, fmt.Errorf("%w: %q", ErrUnknownLesson, lessonID)
	}
	return lesson, nil
}

// Cards returns the vocabulary catalog.
func (c *Catalog) Cards() []model.VocabCard {
	return append([]model.VocabCard(nil), c.cards...)
}

// Lessons returns every lesson in catalog order.
func (c *Catalog) Lessons() []model.LessonMeta {
	return append([]model.LessonMeta(nil), c.lessons...)
}
