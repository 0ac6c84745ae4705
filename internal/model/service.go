package model

// ServiceFor infers the Home Assistant service call for an action entity
// reaching a given state, by domain (spec.md §4.5). Shared by the
// association, sequence and temporal miners, which all promote actions
// through the same inference table. climate is intentionally excluded:
// no single service call is safe to infer for every climate mode.
func ServiceFor(entityID, state string) string {
	domain, _ := SplitEntityID(entityID)

	switch domain {
	case "light", "switch":
		return "turn_" + state
	case "lock":
		if state == "locked" {
			return "lock"
		}
		return "unlock"
	case "cover":
		if state == "open" {
			return "open_cover"
		}
		return "close_cover"
	case "media_player":
		switch state {
		case "playing":
			return "media_play"
		case "paused":
			return "media_pause"
		default:
			return "media_stop"
		}
	default:
		return ""
	}
}
