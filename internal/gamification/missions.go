package gamification

// Mission is a declarative rule: when Check holds for a user's stats the
// mission completes once and awards XP.
type Mission struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	XP          int              `json:"xp"`
	Check       func(Stats) bool `json:"-"`
}

func atLeast(n int, field func(Stats) int) func(Stats) bool {
	return func(s Stats) bool { return field(s) >= n }
}

// Missions is the built-in mission catalog.
var Missions = []Mission{
	{ID: "first_rating", Title: "Primo voto", Description: "Rate your first film", XP: 20,
		Check: atLeast(1, func(s Stats) int { return s.Ratings })},
	{ID: "critic_10", Title: "Critico in erba", Description: "Rate 10 films", XP: 60,
		Check: atLeast(10, func(s Stats) int { return s.Ratings })},
	{ID: "critic_50", Title: "Critico navigato", Description: "Rate 50 films", XP: 200,
		Check: atLeast(50, func(s Stats) int { return s.Ratings })},
	{ID: "reviewer", Title: "Penna d'oro", Description: "Write 5 reviews", XP: 80,
		Check: atLeast(5, func(s Stats) int { return s.Reviews })},
	{ID: "genre_explorer", Title: "Esploratore", Description: "Rate films from 5 different genres", XP: 70,
		Check: atLeast(5, func(s Stats) int { return s.GenresRated })},
	{ID: "first_vote", Title: "Alle urne", Description: "Vote in a cineforum event", XP: 30,
		Check: atLeast(1, func(s Stats) int { return s.Votes })},
	{ID: "voter_10", Title: "Elettore fedele", Description: "Vote in 10 cineforum events", XP: 150,
		Check: atLeast(10, func(s Stats) int { return s.Votes })},
	{ID: "spectator", Title: "In sala", Description: "Watch a cineforum pick", XP: 50,
		Check: atLeast(1, func(s Stats) int { return s.EventsAttended })},
	{ID: "regular", Title: "Habitué", Description: "Watch 5 cineforum picks", XP: 180,
		Check: atLeast(5, func(s Stats) int { return s.EventsAttended })},
	{ID: "curator", Title: "Curatore", Description: "Propose a candidate film", XP: 50,
		Check: atLeast(1, func(s Stats) int { return s.CandidatesProposed })},
	{ID: "kingmaker", Title: "Fiuto da programmista", Description: "Propose a film that wins an event", XP: 120,
		Check: atLeast(1, func(s Stats) int { return s.WinningProposals })},
	{ID: "chatter", Title: "Chiacchierone", Description: "Send 25 chat messages", XP: 40,
		Check: atLeast(25, func(s Stats) int { return s.ChatMessages })},
	{ID: "trivia_rookie", Title: "Quiz!", Description: "Finish a trivia round", XP: 25,
		Check: atLeast(1, func(s Stats) int { return s.TriviaPlayed })},
	{ID: "trivia_ace", Title: "Enciclopedia", Description: "Answer 50 trivia questions correctly", XP: 200,
		Check: atLeast(50, func(s Stats) int { return s.TriviaCorrect })},
	{ID: "timeline_first", Title: "Cronologo", Description: "Finish a timeline game", XP: 30,
		Check: atLeast(1, func(s Stats) int { return s.TimelineGames })},
	{ID: "timeline_perfect", Title: "Macchina del tempo", Description: "Order a timeline perfectly", XP: 100,
		Check: atLeast(1, func(s Stats) int { return s.TimelinePerfect })},
}

// MissionByID looks up a mission in the catalog.
func MissionByID(id string) (Mission, bool) {
	for _, m := range Missions {
		if m.ID == id {
			return m, true
		}
	}
	return Mission{}, false
}

// Evaluate returns the missions in catalog that hold for stats and are not
// in completed, in catalog order.
func Evaluate(catalog []Mission, completed map[string]bool, stats Stats) []Mission {
	var out []Mission
	for _, m := range catalog {
		if completed[m.ID] {
			continue
		}
		if m.Check != nil && m.Check(stats) {
			out = append(out, m)
		}
	}
	return out
}

// TotalXP sums the rewards of ms.
func TotalXP(ms []Mission) int {
	total := 0
	for _, m := range ms {
		total += m.XP
	}
	return total
}
