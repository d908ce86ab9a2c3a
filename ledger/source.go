package ledger

// Source is the closed set of reward reasons. Unknown sources are rejected at
// the boundary instead of being coerced into a zero-effect grant.
type Source string

const (
	SourceCheckIn       Source = "check_in"
	SourceCreateLetter  Source = "create_letter"
	SourceCreateDuel    Source = "create_duel"
	SourceWinDuel       Source = "win_duel"
	SourceInviteFriend  Source = "invite_friend"
	SourceDailyQuest    Source = "daily_quest"
	SourceUpdateProfile Source = "update_profile"
	SourceCreateSquad   Source = "create_squad"
	SourceGuideReward   Source = "guide_reward"
	SourceLoginLoot     Source = "login_loot"
	SourceEventClaim    Source = "event_claim"
	SourceAchievement   Source = "achievement"
	SourceGiftEffect    Source = "gift_effect"
)

var validSources = map[Source]struct{}{
	SourceCheckIn:       {},
	SourceCreateLetter:  {},
	SourceCreateDuel:    {},
	SourceWinDuel:       {},
	SourceInviteFriend:  {},
	SourceDailyQuest:    {},
	SourceUpdateProfile: {},
	SourceCreateSquad:   {},
	SourceGuideReward:   {},
	SourceLoginLoot:     {},
	SourceEventClaim:    {},
	SourceAchievement:   {},
	SourceGiftEffect:    {},
}

// Valid reports whether s belongs to the reward source registry.
func (s Source) Valid() bool {
	_, ok := validSources[s]
	return ok
}
