package grader

var defaultAnswers = []string{
	"A thin layer of fresh snow resting on an older, unstable base.",
	"Hearing cracks and seeing snow melt can signal instability.",
	"Construction and deforestation removed natural barriers.",
	"tiny (direct opposite of massive).",
	`"People caught in an avalanche can try to swim to the top." is correct.`,
	"Flood mimics the sudden surge, matching the analogy best.",
}

var defaultComments = []string{
	"Excellent choice. New snow or rain indeed disrupts the existing snowpack and can trigger an avalanche.",
	"Well noted. Describing sounds like cracking accurately indicates a weakening snow structure.",
	"Good insight. You recognized how removal of trees and road construction destroyed natural scenery.",
	`Correct antonym. "tiny" effectively conveys the opposite of "massive."`,
	"Perfect interpretation. That statement does reflect the author's advice for survival.",
	"Spot on. Flood captures the rapid and forceful movement similar to how water relates to tsunami or drought.",
}

var defaultImprovements = []string{
	"Tip for Q1: Double-check the broader passage context before finalizing your choice.",
	"Tip for Q2: Add a sentence on how someone might respond once they notice these signs.",
	"Tip for Q3: Include real examples like highways or ski resorts that altered scenery.",
	"Tip for Q4: Verify synonyms in a dictionary to ensure precise antonym usage.",
	"Tip for Q5: Reference the exact line where this advice appears for stronger support.",
	`Tip for Q6: Discuss why "drought" or "tsunami" would not fit the analogy as well as "flood."`,
}
