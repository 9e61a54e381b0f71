package server

import (
	"bufio"
	"os"

	"github.com/pkg/errors"

	btree "github.com/zsabin/PersistentB-Tree"
)

// loadTree reopens the tree from its header sidecar, or bootstraps a new
// one from the words file when no header exists yet.
func (s *Service) loadTree() (*btree.BTree, error) {
	if _, err := os.Stat(s.config.HeaderFileName); err == nil {
		s.log.WithField("header", s.config.HeaderFileName).Info("opening B-tree")
		return btree.Open(s.config.HeaderFileName, s.config.CacheSize)
	}

	s.log.WithField("file", s.config.FileName).Info("creating new B-tree")
	tree, err := btree.New(s.config.Order, s.config.NodeSize, s.config.FileName, s.config.CacheSize)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(s.config.WordsFileName)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.WithField("words", s.config.WordsFileName).Warn("no words file, starting empty")
			return tree, nil
		}
		return nil, errors.Wrapf(err, "failed to open words file %s", s.config.WordsFileName)
	}
	defer file.Close()

	wordCount := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		word := scanner.Text()
		if len(word) == 0 {
			continue
		}
		if _, err := tree.Add(word); err != nil {
			return nil, errors.Wrapf(err, "failed to add %q", word)
		}
		if wordCount%1000 == 0 {
			s.log.WithField("count", wordCount).Info("adding words")
		}
		wordCount++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read words file %s", s.config.WordsFileName)
	}
	s.log.WithField("count", wordCount).Info("finished adding words")
	return tree, nil
}
