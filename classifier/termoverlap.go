// Package classifier provides a concrete, non-embedding Classifier
// implementation for the crawling engine: a bag-of-stems term-overlap
// scorer against a set of per-category ground-truth vocabularies.
//
// It intentionally does not reproduce any embedding model or vector
// training: the crawler only needs an oracle behind the Classify/LoadParams
// contract, and term overlap is a well-understood, dependency-light stand-in
// grounded in the stemming the original crawler's topic model used as a
// preprocessing step.
package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kljensen/snowball"

	"github.com/codepr/topiccrawler/crawler"
)

// notRelevantCategory mirrors crawler.notRelevantCategory, which is
// unexported and so cannot be referenced from this package.
const notRelevantCategory = "not_relevant"

// defaultLanguage is the stemming language; the ground-truth vocabularies
// and crawled pages are both assumed to be English text.
const defaultLanguage = "english"

var wordPattern = regexp.MustCompile(`[A-Za-z]+`)

// TermOverlapClassifier classifies a page by stemming its visible text and
// counting, per category, how many of the category's ground-truth stems
// appear in it.
type TermOverlapClassifier struct {
	categories map[string]map[string]struct{}
}

// NewTermOverlapClassifier creates a classifier with no loaded categories;
// LoadParams must be called before Classify returns anything but
// not_relevant.
func NewTermOverlapClassifier() *TermOverlapClassifier {
	return &TermOverlapClassifier{categories: make(map[string]map[string]struct{})}
}

// groundTruthFile is the on-disk shape of GROUND_TRUTH_VECTORS_FILE: a map
// of category name to a list of representative terms.
type groundTruthFile map[string][]string

// LoadParams reads a JSON file of {category: [terms...]}, stems every term
// and stores the resulting per-category stem sets.
func (c *TermOverlapClassifier) LoadParams(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading ground truth vectors from %s: %w", path, err)
	}
	var raw groundTruthFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing ground truth vectors from %s: %w", path, err)
	}

	categories := make(map[string]map[string]struct{}, len(raw))
	for category, terms := range raw {
		stems := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			stem, err := stemWord(term)
			if err != nil {
				continue
			}
			stems[stem] = struct{}{}
		}
		categories[category] = stems
	}
	c.categories = categories
	return nil
}

// Classify extracts the visible text of html, stems it, and scores it
// against every loaded category by raw stem-overlap count. Distances holds
// the raw counts; RelativeDistances normalizes them by the winning
// category's count, so the guessed category always has relative distance 1.
// The page is Relevant if the winning category is non-empty and scored at
// least one overlapping stem.
func (c *TermOverlapClassifier) Classify(url, html string) (crawler.Classification, error) {
	text, err := visibleText(html)
	if err != nil {
		return crawler.Classification{GuessedCategory: notRelevantCategory}, err
	}

	stems := make(map[string]struct{})
	for _, word := range wordPattern.FindAllString(text, -1) {
		stem, err := stemWord(word)
		if err != nil {
			continue
		}
		stems[stem] = struct{}{}
	}

	distances := make(map[string]float64, len(c.categories))
	best := notRelevantCategory
	var bestScore float64
	for category, vocabulary := range c.categories {
		var overlap float64
		for stem := range vocabulary {
			if _, ok := stems[stem]; ok {
				overlap++
			}
		}
		distances[category] = overlap
		if overlap > bestScore {
			bestScore = overlap
			best = category
		}
	}

	relative := make(map[string]float64, len(distances))
	for category, score := range distances {
		if bestScore > 0 {
			relative[category] = score / bestScore
		} else {
			relative[category] = 0
		}
	}

	return crawler.Classification{
		Relevant:          bestScore > 0,
		Distances:         distances,
		RelativeDistances: relative,
		GuessedCategory:   best,
	}, nil
}

// visibleText strips markup from html, discarding script and style content,
// and returns the remaining whitespace-joined text.
func visibleText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script,style").Remove()
	return doc.Text(), nil
}

func stemWord(word string) (string, error) {
	return snowball.Stem(strings.ToLower(word), defaultLanguage, true)
}
