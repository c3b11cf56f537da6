package cli

import "nurseconnect-quiz-service/internal/domain"

// sampleQuestions serves matches when no Postgres question store is configured and seeds one when it is.
func sampleQuestions() []domain.Question {
	fundamentals := func(id, prompt string, options []string, correct int, explanation string) domain.Question {
		return domain.Question{
			ID: id, Prompt: prompt, Options: options, CorrectOptionIndex: correct, Explanation: explanation,
			Course: "Fundamentals", Unit: "Safety", Career: "CNA", Difficulty: domain.DifficultyEasy,
		}
	}
	pharm := func(id, prompt string, options []string, correct int, explanation string) domain.Question {
		return domain.Question{
			ID: id, Prompt: prompt, Options: options, CorrectOptionIndex: correct, Explanation: explanation,
			Course: "Pharmacology", Unit: "Cardiac", Career: "LPN", Difficulty: domain.DifficultyMedium,
		}
	}
	return []domain.Question{
		fundamentals("fund-safety-01", "A resident is found on the floor. What is the first action?",
			[]string{"Help the resident back to bed", "Call for help and stay with the resident", "Fill out an incident report", "Call the family"},
			1, "Stay with the resident and call for help so the nurse can assess for injury before moving them."),
		fundamentals("fund-safety-02", "Which is the most effective way to prevent the spread of infection?",
			[]string{"Wearing a mask", "Hand hygiene", "Using sterile gloves for all care", "Isolating every resident"},
			1, "Hand hygiene remains the single most effective infection control measure."),
		fundamentals("fund-safety-03", "Before using side rails as a restraint, the nurse aide needs:",
			[]string{"A family request", "A physician order", "The resident to be asleep", "Nothing, rails are not restraints"},
			1, "Side rails that restrict movement are restraints and require an order."),
		fundamentals("fund-safety-04", "The correct order for removing PPE begins with:",
			[]string{"Gown", "Mask", "Gloves", "Goggles"},
			2, "Gloves are the most contaminated item and are removed first."),
		fundamentals("fund-safety-05", "When a fire alarm sounds, the acronym RACE starts with:",
			[]string{"Run", "Rescue", "Report", "Retreat"},
			1, "Rescue residents in immediate danger, then Alarm, Contain, Extinguish."),
		fundamentals("fund-safety-06", "A normal adult resting respiratory rate is:",
			[]string{"8-10 breaths per minute", "12-20 breaths per minute", "22-28 breaths per minute", "30-40 breaths per minute"},
			1, ""),
		pharm("pharm-cardiac-01", "Before giving digoxin, the nurse checks:",
			[]string{"Blood pressure", "Apical pulse for one full minute", "Temperature", "Oxygen saturation"},
			1, "Hold digoxin and notify the provider if the apical pulse is below 60."),
		pharm("pharm-cardiac-02", "An early sign of digoxin toxicity is:",
			[]string{"Nausea and visual disturbances", "Hypertension", "Increased appetite", "Fever"},
			0, "GI upset and yellow-green halos are classic early signs."),
		pharm("pharm-cardiac-03", "Which lab value is most important to monitor with furosemide?",
			[]string{"Glucose", "Potassium", "Calcium", "Hemoglobin"},
			1, "Loop diuretics waste potassium and hypokalemia raises digoxin toxicity risk."),
		pharm("pharm-cardiac-04", "A patient on warfarin should avoid large changes in intake of:",
			[]string{"Vitamin K rich foods", "Protein", "Sodium", "Caffeine"},
			0, "Vitamin K antagonizes warfarin; intake should stay consistent."),
		pharm("pharm-cardiac-05", "Nitroglycerin sublingual tablets may be repeated every:",
			[]string{"1 minute", "5 minutes", "15 minutes", "30 minutes"},
			1, "Up to three doses five minutes apart; call emergency services if pain persists."),
		pharm("pharm-cardiac-06", "A common adverse effect of ACE inhibitors is:",
			[]string{"Dry cough", "Weight gain", "Hypoglycemia", "Bradycardia"},
			0, ""),
	}
}
