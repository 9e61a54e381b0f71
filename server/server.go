package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	btree "github.com/zsabin/PersistentB-Tree"
)

// Service serves the dictionary over TCP, one request per connection. The
// request is an HTTP-like line "GET /<token> HTTP/1.1": a leading '?'
// closes the tree (the next request reopens it), a leading '-' removes a
// word, any other non-empty token adds one. The response is an HTML page.
//
// The tree is single-client; requests are handled one at a time.
type Service struct {
	config     *Config
	log        *logrus.Logger
	tree       *btree.BTree
	treeIsOpen bool
}

// NewService creates a dictionary service over the given config.
func NewService(config *Config, log *logrus.Logger) *Service {
	return &Service{
		config: config,
		log:    log,
	}
}

// ListenAndServe listens on the configured port and serves requests until
// the listener fails.
func (s *Service) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", s.config.Port)
	}
	defer listener.Close()
	return s.Serve(listener)
}

// Serve loads the tree and accepts connections from the listener,
// handling them sequentially.
func (s *Service) Serve(listener net.Listener) error {
	tree, err := s.loadTree()
	if err != nil {
		return err
	}
	s.tree, s.treeIsOpen = tree, true
	s.log.WithField("addr", listener.Addr().String()).Info("service is ready")

	for {
		conn, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "accept failed")
		}
		if err := s.handleConn(conn); err != nil {
			s.log.WithError(err).Error("request failed")
		}
	}
}

func (s *Service) handleConn(conn net.Conn) error {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return errors.Wrap(err, "failed to read request line")
	}

	request := parseRequestLine(line)
	resultMsg, err := s.dispatch(request)
	if err != nil {
		return err
	}

	reply := "<html>\n" +
		"<head><title>Persistent B-Tree</title></head>\n" +
		"Got request: " + strings.TrimRight(line, "\r\n") + "<br><br>\n " +
		resultMsg +
		"\n</html>\n"
	_, err = fmt.Fprintf(conn, "HTTP/1.0 200 OK\r\nContent-Length: %d\r\nContent-Type: text/html\r\n\r\n%s", len(reply), reply)
	return errors.Wrap(err, "failed to write response")
}

// dispatch verifies the secret when auth is configured, reopens the tree
// if a previous request closed it, and applies the command.
func (s *Service) dispatch(request string) (string, error) {
	if s.config.SecretHash != "" {
		secret, rest, found := strings.Cut(request, "/")
		if !found || bcrypt.CompareHashAndPassword([]byte(s.config.SecretHash), []byte(secret)) != nil {
			return "access denied", nil
		}
		request = rest
	}

	if !s.treeIsOpen {
		tree, err := s.loadTree()
		if err != nil {
			return "", err
		}
		s.tree, s.treeIsOpen = tree, true
	}

	switch {
	case strings.HasPrefix(request, "?"):
		if err := s.tree.Close(); err != nil {
			return "", err
		}
		s.treeIsOpen = false
		return "the B-tree was closed", nil

	case strings.HasPrefix(request, "-"):
		word := request[1:]
		removed, err := s.tree.Remove(word)
		if err != nil {
			return "", err
		}
		if removed {
			return fmt.Sprintf("'%s' was REMOVED from the dictionary", word), nil
		}
		return fmt.Sprintf("'%s' was NOT FOUND in the dictionary and could not be removed", word), nil

	case len(request) > 0:
		added, err := s.tree.Add(request)
		if err != nil {
			return "", err
		}
		if added {
			return fmt.Sprintf("'%s' was ADDED to the dictionary", request), nil
		}
		return fmt.Sprintf("'%s' was FOUND in the dictionary", request), nil

	default:
		return "Please Enter a Command", nil
	}
}

// parseRequestLine extracts the command token from an HTTP-like request
// line of the form "GET /<token> HTTP/1.1".
func parseRequestLine(line string) string {
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimPrefix(line, "GET /")
	if i := strings.Index(line, " HTTP"); i >= 0 {
		line = line[:i]
	}
	return line
}
