package telegram

import "sync"

// session - последний поиск в чате, нужен для /more
type session struct {
	Platform      string
	Query         string
	NextPageToken string
	Page          int
}

type sessionStore struct {
	mu    sync.Mutex
	chats map[int64]session
}

func newSessionStore() *sessionStore {
	return &sessionStore{chats: make(map[int64]session)}
}

func (s *sessionStore) Get(chatID int64) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.chats[chatID]
	return sess, ok
}

func (s *sessionStore) Set(chatID int64, sess session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = sess
}

func (s *sessionStore) Delete(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
}
