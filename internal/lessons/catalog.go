package lessons

import (
	"errors"
	"fmt"
	"sort"
)

// Practice modes for guided sessions.
const (
	PracticeSingleSign = "single_sign"
	PracticeFullLevel  = "full_level"
)

var (
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrGestureIndex    = errors.New("gesture index out of range")
	ErrUnknownPractice = errors.New("unknown practice mode")
)

// Lesson is a named group of gestures practiced together.
type Lesson struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Gestures    []string `json:"gestures"`
}

var catalog = map[string]Lesson{
	"lesson_1": {
		ID:          "lesson_1",
		Title:       "Basic Greetings",
		Description: "Hello, Thank You, Yes and No",
		Gestures:    []string{"Hello", "Thank You", "Yes", "No"},
	},
	"lesson_2": {
		ID:          "lesson_2",
		Title:       "Emotions & Feelings",
		Description: "Happy, Sad, Angry and Love",
		Gestures:    []string{"Happy", "Sad", "Angry", "Love"},
	},
	"lesson_3": {
		ID:          "lesson_3",
		Title:       "Daily Actions",
		Description: "Eat, Drink, Sleep and Go",
		Gestures:    []string{"Eat", "Drink", "Sleep", "Go"},
	},
	"lesson_4": {
		ID:          "lesson_4",
		Title:       "Common Objects",
		Description: "Book, Phone, Car and Home",
		Gestures:    []string{"Book", "Phone", "Car", "Home"},
	},
	"lesson_5": {
		ID:          "lesson_5",
		Title:       "Question Words",
		Description: "What, Where, When and Who",
		Gestures:    []string{"What", "Where", "When", "Who"},
	},
}

// All returns every lesson ordered by id.
func All() []Lesson {
	out := make([]Lesson, 0, len(catalog))
	for _, l := range catalog {
		out = append(out, clone(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one lesson.
func Get(id string) (Lesson, error) {
	l, ok := catalog[id]
	if !ok {
		return Lesson{}, fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	return clone(l), nil
}

// Sequence resolves the expected gestures for a practice request. Single-sign
// practice drills one gesture of the lesson; full-level practice walks all of them.
func Sequence(lessonID, mode string, gestureIndex int) ([]string, error) {
	l, err := Get(lessonID)
	if err != nil {
		return nil, err
	}
	switch mode {
	case "", PracticeFullLevel:
		return l.Gestures, nil
	case PracticeSingleSign:
		if gestureIndex < 0 || gestureIndex >= len(l.Gestures) {
			return nil, fmt.Errorf("%w: %d", ErrGestureIndex, gestureIndex)
		}
		return []string{l.Gestures[gestureIndex]}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPractice, mode)
	}
}

func clone(l Lesson) Lesson {
	l.Gestures = append([]string(nil), l.Gestures...)
	return l
}
