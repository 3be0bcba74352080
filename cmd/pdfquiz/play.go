package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"pdfquiz"
)

// playQuiz asks every question on out, reads answers from in and returns
// the number answered correctly.
func playQuiz(in io.Reader, out io.Writer, mcqs []pdfquiz.MCQ) int {
	scanner := bufio.NewScanner(in)
	score := 0

	fmt.Fprintf(out, "🎯 Starting quiz: %d questions\n\n", len(mcqs))
	for i, mcq := range mcqs {
		fmt.Fprintf(out, "Question %d/%d:\n", i+1, len(mcqs))
		fmt.Fprintf(out, "%s\n\n", mcq.Question)
		for _, key := range pdfquiz.OptionKeys {
			fmt.Fprintf(out, "%s) %s\n", key, mcq.Options[key])
		}
		fmt.Fprintln(out)

		answer, ok := readAnswer(scanner, out)
		if !ok {
			fmt.Fprintln(out, "\nInput closed, ending quiz early.")
			break
		}

		if answer == mcq.Answer {
			fmt.Fprintln(out, "✅ Correct!")
			score++
		} else {
			fmt.Fprintf(out, "❌ Incorrect. The correct answer is %s) %s\n", mcq.Answer, mcq.Options[mcq.Answer])
		}
		fmt.Fprintf(out, "📊 Score: %d/%d\n\n", score, i+1)
		fmt.Fprintln(out, strings.Repeat("─", 50))
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "🎉 Quiz completed!")
	if len(mcqs) > 0 {
		percentage := float64(score) / float64(len(mcqs)) * 100
		fmt.Fprintf(out, "🏆 Final score: %d/%d (%.1f%%)\n", score, len(mcqs), percentage)
		switch {
		case percentage >= 80:
			fmt.Fprintln(out, "🌟 Excellent work!")
		case percentage >= 60:
			fmt.Fprintln(out, "👍 Good job!")
		default:
			fmt.Fprintln(out, "📚 Keep studying!")
		}
	}
	return score
}

// readAnswer prompts until a valid option letter is entered. It reports
// false when input runs out.
func readAnswer(scanner *bufio.Scanner, out io.Writer) (string, bool) {
	for {
		fmt.Fprint(out, "Your answer (A/B/C/D): ")
		if !scanner.Scan() {
			return "", false
		}
		answer := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		for _, key := range pdfquiz.OptionKeys {
			if answer == key {
				return answer, true
			}
		}
		fmt.Fprintln(out, "Please enter A, B, C, or D")
	}
}
