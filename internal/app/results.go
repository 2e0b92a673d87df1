package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"toohak-session-service/internal/domain"
)

// questionResult computes the statistics of one question from its recorded
// answers, in submission order.
func questionResult(sess *domain.Session, position int) domain.QuestionResult {
	qs := sess.QuestionSessions[position-1]

	correctNames := []string{}
	totalCorrectTime := 0.0
	for _, answer := range qs.PlayerAnswers {
		if !answer.Correct {
			continue
		}
		if player, ok := sess.FindPlayer(answer.PlayerID); ok {
			correctNames = append(correctNames, player.Name)
		}
		totalCorrectTime += answer.TimeTakenSeconds
	}

	percent := 0
	if len(qs.PlayerAnswers) > 0 {
		percent = int(math.Round(float64(len(correctNames)) / float64(len(qs.PlayerAnswers)) * 100))
	}
	average := 0
	if len(correctNames) > 0 {
		average = int(math.Round(totalCorrectTime / float64(len(correctNames))))
	}

	return domain.QuestionResult{
		QuestionID:         qs.QuestionID,
		PlayersCorrectList: correctNames,
		AverageAnswerTime:  average,
		PercentCorrect:     percent,
	}
}

// finalizeResults runs both analysis passes when the session enters
// FINAL_RESULTS: per-question statistics, then rank-divided player scores.
// It runs exactly once per session; playerScores is immutable afterwards.
func finalizeResults(sess *domain.Session) {
	if sess.PlayerScores != nil {
		return
	}

	numQuestions := len(sess.Metadata.Questions)
	perPlayer := make(map[int][]domain.QuestionScore, len(sess.Players))
	for _, p := range sess.Players {
		perPlayer[p.ID] = make([]domain.QuestionScore, numQuestions)
	}

	for i := range sess.Metadata.Questions {
		result := questionResult(sess, i+1)
		qs := sess.QuestionSessions[i]
		qs.PlayersCorrectList = result.PlayersCorrectList
		qs.AverageAnswerTime = result.AverageAnswerTime
		qs.PercentCorrect = result.PercentCorrect

		// Rank correct answers by submission order; the question's points are
		// divided by rank, so the first correct player takes full points.
		points := sess.Metadata.Questions[i].Points
		rank := 0
		for _, answer := range qs.PlayerAnswers {
			if !answer.Correct {
				continue
			}
			rank++
			scores, ok := perPlayer[answer.PlayerID]
			if !ok {
				continue
			}
			scores[i] = domain.QuestionScore{
				Score: float64(points) / float64(rank),
				Rank:  rank,
			}
		}
	}

	playerScores := make([]domain.PlayerScore, 0, len(sess.Players))
	for _, p := range sess.Players {
		scores := perPlayer[p.ID]
		total := 0.0
		for _, qs := range scores {
			total += qs.Score
		}
		p.Score = total
		playerScores = append(playerScores, domain.PlayerScore{Name: p.Name, Questions: scores})
	}
	// Alphabetical order keeps the CSV export deterministic.
	sort.Slice(playerScores, func(i, j int) bool {
		return playerScores[i].Name < playerScores[j].Name
	})
	sess.PlayerScores = playerScores
}

// FinalResults returns the leaderboard and per-question statistics. Readable
// any time after the session entered FINAL_RESULTS.
func (s *SessionService) FinalResults(_ context.Context, token string, sessionID int) (domain.FinalResults, error) {
	ownerID, err := s.resolveOwner(token)
	if err != nil {
		return domain.FinalResults{}, err
	}

	var results domain.FinalResults
	err = s.sessions.View(sessionID, func(sess *domain.Session) error {
		if sess.OwnerID != ownerID {
			return domain.ErrForbidden
		}
		if sess.State != domain.StateFinalResults {
			return fmt.Errorf("%w: session is not in FINAL_RESULTS", domain.ErrValidation)
		}

		ranked := make([]domain.UserScore, len(sess.Players))
		for i, p := range sess.Players {
			ranked[i] = domain.UserScore{Name: p.Name, Score: p.Score}
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Score != ranked[j].Score {
				return ranked[i].Score > ranked[j].Score
			}
			return ranked[i].Name < ranked[j].Name
		})

		questionResults := make([]domain.QuestionResult, len(sess.QuestionSessions))
		for i, qs := range sess.QuestionSessions {
			questionResults[i] = domain.QuestionResult{
				QuestionID:         qs.QuestionID,
				PlayersCorrectList: qs.PlayersCorrectList,
				AverageAnswerTime:  qs.AverageAnswerTime,
				PercentCorrect:     qs.PercentCorrect,
			}
		}
		results = domain.FinalResults{UsersRankedByScore: ranked, QuestionResults: questionResults}
		return nil
	})
	return results, err
}

// ExportResultsCSV renders the final results to CSV, stores the document
// under a fresh token and returns the path it can be fetched from.
func (s *SessionService) ExportResultsCSV(ctx context.Context, token string, sessionID int) (string, error) {
	ownerID, err := s.resolveOwner(token)
	if err != nil {
		return "", err
	}

	var data []byte
	err = s.sessions.View(sessionID, func(sess *domain.Session) error {
		if sess.OwnerID != ownerID {
			return domain.ErrForbidden
		}
		if sess.State != domain.StateFinalResults {
			return fmt.Errorf("%w: session is not in FINAL_RESULTS", domain.ErrValidation)
		}
		data, err = renderResultsCSV(sess)
		return err
	})
	if err != nil {
		return "", err
	}

	exportToken := uuid.NewString()
	if err := s.exports.Save(ctx, sessionID, exportToken, data); err != nil {
		return "", err
	}
	s.logger.Infow("results exported", "sessionId", sessionID, "bytes", len(data))
	return fmt.Sprintf("/v1/session/%d/results/csv/%s.csv", sessionID, exportToken), nil
}

// FetchCSV retrieves a previously exported CSV document.
func (s *SessionService) FetchCSV(ctx context.Context, sessionID int, exportToken string) ([]byte, error) {
	return s.exports.Fetch(ctx, sessionID, exportToken)
}

// renderResultsCSV writes one row per player, sorted alphabetically by name,
// with a score/rank column pair per question. Gaps render as 0.
func renderResultsCSV(sess *domain.Session) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Player"}
	for i := range sess.Metadata.Questions {
		header = append(header,
			fmt.Sprintf("question%dscore", i+1),
			fmt.Sprintf("question%drank", i+1))
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, ps := range sess.PlayerScores {
		row := []string{ps.Name}
		for _, qs := range ps.Questions {
			row = append(row,
				strconv.FormatFloat(qs.Score, 'f', -1, 64),
				strconv.Itoa(qs.Rank))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
