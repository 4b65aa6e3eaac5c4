package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	chatTemperature     float32 = 0.5
	generateTemperature float32 = 0.7

	// Prior turns sent with a tutoring prompt.
	chatContextTurns = 2

	MaxRoadmapDays = 30

	defaultImagePrompt = "Check out this problem and solve it step by step."
)

const tutorSystemPrompt = `You are a patient mathematics tutor.
Guide the student through each problem one step at a time and explain the reasoning behind every step.
When the student makes a mistake, point it out gently and show how to correct it.
Prefer short worked examples over long lectures, and finish by checking that the student understood.
Only answer questions related to mathematics; politely decline anything else.`

const quizPromptTemplate = `Create a multiple choice quiz about "%s" at %s difficulty.
Difficulty levels:
- Easy: direct recall of definitions and single-step calculations.
- Medium: two or three step problems that combine related ideas.
- Hard: multi-step problems that require choosing a strategy.
Return exactly 10 questions as a JSON array and nothing else. Each element has the fields:
"id" (number starting at 1), "title" (the question), "option1", "option2", "option3", "option4",
"correct" (the exact text of the correct option) and "reason" (a one or two sentence explanation).`

const roadmapPromptTemplate = `Build a %d day study plan for learning "%s".
Return a JSON array with exactly %d elements and nothing else. Each element has the fields:
"id" (number starting at 1), "title" ("Day 1", "Day 2", ...), "heading" (the topic of the day),
"description" (what the student does that day), "objectives" (array of short strings) and
"resources" (array of objects with "type", "title", "author" and "platform").`

var quizComplexities = map[string]string{
	"easy":   "Easy",
	"medium": "Medium",
	"hard":   "Hard",
}

// TutorTextOperation is a text tutoring turn recorded in the owner's session.
func TutorTextOperation(ownerID uuid.UUID, prompt string, prior []Turn) MeteredOperation {
	prompt = strings.TrimSpace(prompt)
	return MeteredOperation{
		Kind: KindTutorText,
		Cost: Charge{Amount: CostTextTurn},
		Build: func() (GenerationRequest, error) {
			if prompt == "" {
				return GenerationRequest{}, NewValidationError("prompt is required")
			}
			return GenerationRequest{
				System:      tutorSystemPrompt,
				History:     lastTurns(withoutCurrent(prior, prompt), chatContextTurns),
				Prompt:      prompt,
				Temperature: chatTemperature,
			}, nil
		},
		History: &HistoryTarget{OwnerID: ownerID, Text: prompt},
	}
}

// TutorImageOperation is a tutoring turn about an image, run on the vision
// model without prior turns.
func TutorImageOperation(ownerID uuid.UUID, prompt, imageURL string) MeteredOperation {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = defaultImagePrompt
	}
	imageURL = strings.TrimSpace(imageURL)
	return MeteredOperation{
		Kind: KindTutorImage,
		Cost: Charge{Amount: CostImageTurn},
		Build: func() (GenerationRequest, error) {
			if imageURL == "" {
				return GenerationRequest{}, NewValidationError("imageLink is required for image prompts")
			}
			return GenerationRequest{
				System:      tutorSystemPrompt,
				Prompt:      prompt,
				ImageURL:    imageURL,
				Temperature: chatTemperature,
				Vision:      true,
			}, nil
		},
		History: &HistoryTarget{OwnerID: ownerID, Text: prompt, ImageURL: imageURL},
	}
}

func QuizOperation(topic, complexity string) MeteredOperation {
	return MeteredOperation{
		Kind: KindQuiz,
		Cost: Charge{Amount: CostQuiz},
		Build: func() (GenerationRequest, error) {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				return GenerationRequest{}, NewValidationError("topic is required")
			}
			level := "Medium"
			if c := strings.ToLower(strings.TrimSpace(complexity)); c != "" {
				var ok bool
				if level, ok = quizComplexities[c]; !ok {
					return GenerationRequest{}, NewValidationError("complexity must be one of Easy, Medium or Hard")
				}
			}
			return GenerationRequest{
				Prompt:      fmt.Sprintf(quizPromptTemplate, topic, level),
				Temperature: generateTemperature,
			}, nil
		},
	}
}

// RoadmapOperation also bumps the roadmap counter in the same debit.
func RoadmapOperation(topic string, days int) MeteredOperation {
	return MeteredOperation{
		Kind: KindRoadmap,
		Cost: Charge{Amount: CostRoadmap, Roadmaps: 1},
		Build: func() (GenerationRequest, error) {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				return GenerationRequest{}, NewValidationError("topic is required")
			}
			if days < 1 || days > MaxRoadmapDays {
				return GenerationRequest{}, NewValidationError("days must be between 1 and %d", MaxRoadmapDays)
			}
			return GenerationRequest{
				Prompt:      fmt.Sprintf(roadmapPromptTemplate, days, topic, days),
				Temperature: generateTemperature,
			}, nil
		},
	}
}

// withoutCurrent drops a trailing user turn that repeats the prompt, since
// clients post the transcript with the new question already appended.
func withoutCurrent(turns []Turn, prompt string) []Turn {
	for len(turns) > 0 {
		last := turns[len(turns)-1]
		content := strings.TrimSpace(last.Content)
		if content == "" {
			turns = turns[:len(turns)-1]
			continue
		}
		if last.Role == RoleUser && content == prompt {
			return turns[:len(turns)-1]
		}
		break
	}
	return turns
}

func lastTurns(turns []Turn, n int) []Turn {
	var kept []Turn
	for _, t := range turns {
		if strings.TrimSpace(t.Content) != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}
