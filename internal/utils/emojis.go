package utils

// Labels and emojis for dose variants and observation notes shown in bot messages.
func GetVariantLabel(variant string) string {
	switch variant {
	case "active":
		return "💊 Active"
	case "placebo":
		return "🟡 Placebo"
	default:
		return variant
	}
}

func GetNoteLabel(note string) string {
	switch note {
	case "cramps":
		return "🤕 Cramps"
	case "bleeding":
		return "🩸 Bleeding"
	case "discharge":
		return "💧 Discharge"
	case "breast_pain":
		return "🫀 Breast pain"
	case "back_pain":
		return "🦴 Back pain"
	case "leg_pain":
		return "🦵 Leg pain"
	case "acne":
		return "🔴 Acne"
	case "protected_sex":
		return "🛡️ Protected"
	case "unprotected_sex":
		return "💕 Unprotected"
	default:
		return "📌 " + note
	}
}

func GetStatusEmoji(taken, alertSent bool) string {
	switch {
	case taken:
		return "✅"
	case alertSent:
		return "🚨"
	default:
		return "⬜"
	}
}
