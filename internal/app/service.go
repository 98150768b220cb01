// Package app holds the comment feed service: sorted/filtered listing,
// submission with the anonymous abuse guard, and the author notification
// relay, plus the question surface around them.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"typetalk/api/internal/config"
	"typetalk/api/internal/docstore"
	"typetalk/api/internal/identity"
	"typetalk/api/internal/notify"
	"typetalk/api/internal/store"
	"typetalk/api/internal/util"
)

// commentPageSize caps every comment page before trait filtering.
const commentPageSize = 10

// TraitAnonymous is the pseudo-trait that admits anonymous commenters into a
// trait-filtered listing.
const TraitAnonymous = "Anonymous"

const (
	ParentKindQuestion = "question"
	ParentKindComment  = "comment"
)

type Service struct {
	cfg       config.Config
	questions *store.Questions
	comments  *store.Comments
	authors   *store.Authors
	relay     *notify.Relay
	resolver  *identity.Resolver
	log       *zap.Logger
	now       func() time.Time
}

func New(cfg config.Config, stores *store.Stores, relay *notify.Relay, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		questions: stores.Questions,
		comments:  stores.Comments,
		authors:   stores.Authors,
		relay:     relay,
		resolver:  identity.NewResolver(cfg.AnonPrefix),
		log:       log,
		now:       time.Now,
	}
}

// Resolver exposes the identity capability for the transport boundary.
func (s *Service) Resolver() *identity.Resolver {
	return s.resolver
}

type ListSortedCommentsInput struct {
	// QuestionURL scopes the listing to one thread; empty means all comments.
	QuestionURL string
	Traits      []string
	DateRange   string
	SortBy      string
	Skip        int
}

type CommentPage struct {
	Comments []store.Comment `json:"comments"`
	Count    int             `json:"count"`
}

// ListSortedComments returns one page of comments for the thread, sorted,
// windowed by the date range, and post-filtered by commenter trait. The count
// always covers the whole thread: the UI total is independent of the window
// and of trait filtering.
func (s *Service) ListSortedComments(ctx context.Context, in ListSortedCommentsInput) (CommentPage, error) {
	threadID := ""
	if in.QuestionURL != "" {
		question, found, err := s.questions.GetByURL(ctx, in.QuestionURL)
		if err != nil {
			return CommentPage{}, err
		}
		if found {
			threadID = question.ID
		}
	}

	count, err := s.comments.CountByParent(ctx, threadID)
	if err != nil {
		return CommentPage{}, err
	}

	comments, err := s.comments.ListPage(ctx, store.CommentPageQuery{
		ParentID:   threadID,
		CreatedGte: resolveCutoff(s.now(), in.DateRange),
		Sort:       commentSort(in.SortBy),
		Limit:      commentPageSize,
		Skip:       in.Skip,
	})
	if err != nil {
		return CommentPage{}, err
	}

	filtered, err := s.filterByTraits(ctx, comments, in.Traits)
	if err != nil {
		return CommentPage{}, err
	}
	return CommentPage{Comments: filtered, Count: count}, nil
}

func commentSort(sortBy string) docstore.Sort {
	switch sortBy {
	case "likes":
		return docstore.Sort{Field: "likeIds", Desc: true, ArrayLen: true}
	case "oldest":
		return docstore.Sort{Field: "dateCreated"}
	default:
		return docstore.Sort{Field: "dateCreated", Desc: true}
	}
}

// filterByTraits keeps comments whose author carries one of the requested
// traits, with "Anonymous" admitting anonymous commenters. An empty trait set
// disables filtering. Comments whose registered author cannot be resolved are
// dropped, not surfaced as errors.
func (s *Service) filterByTraits(ctx context.Context, comments []store.Comment, traits []string) ([]store.Comment, error) {
	if len(traits) == 0 {
		return comments, nil
	}

	wanted := make(map[string]bool, len(traits))
	for _, trait := range traits {
		wanted[trait] = true
	}

	kept := make([]store.Comment, 0, len(comments))
	for _, comment := range comments {
		if s.resolver.KindOf(comment.AuthorID) == identity.KindAnonymous {
			if wanted[TraitAnonymous] {
				kept = append(kept, comment)
			}
			continue
		}
		author, found, err := s.authors.GetRegistered(ctx, comment.AuthorID)
		if err != nil {
			return nil, err
		}
		if !found {
			s.log.Warn("dropping comment with unresolved author",
				zap.String("comment_id", comment.ID),
				zap.String("author_id", comment.AuthorID))
			continue
		}
		if wanted[author.Enneagram] {
			kept = append(kept, comment)
		}
	}
	return kept, nil
}

type SubmitCommentInput struct {
	// ID is the client-supplied comment id; minted server-side when empty.
	ID         string
	ParentID   string
	Author     identity.Author
	Text       string
	ParentKind string
	Origin     string
}

// SubmitComment runs the abuse guard for anonymous authors, persists the
// comment, attaches it to its parent, and relays a notification to the
// question author. Notification failures never fail the submission.
func (s *Service) SubmitComment(ctx context.Context, in SubmitCommentInput) (store.Comment, error) {
	if in.Author.Anonymous() && in.ParentKind == ParentKindQuestion {
		if err := s.guardAnonymous(ctx, in.ParentID, in.Author.ID, in.Origin); err != nil {
			return store.Comment{}, err
		}
	}

	now := s.now().UTC()
	comment := store.Comment{
		ID:           in.ID,
		ParentID:     in.ParentID,
		AuthorID:     in.Author.ID,
		Text:         in.Text,
		LikerIDs:     []string{},
		CommentIDs:   []string{},
		Origin:       in.Origin,
		DateCreated:  now,
		DateModified: now,
	}
	if comment.ID == "" {
		comment.ID = util.NewID("c")
	}
	if err := s.comments.Insert(ctx, comment); err != nil {
		return store.Comment{}, err
	}

	switch in.ParentKind {
	case ParentKindQuestion:
		question, found, err := s.questions.GetByID(ctx, in.ParentID)
		if err != nil {
			return store.Comment{}, err
		}
		if found {
			if err := s.questions.AttachComment(ctx, question.ID, comment.ID, comment.AuthorID); err != nil {
				return store.Comment{}, err
			}
			s.notifyAuthor(ctx, question, comment)
		}
	case ParentKindComment:
		if err := s.comments.PushChild(ctx, in.ParentID, comment.ID); err != nil {
			return store.Comment{}, err
		}
	default:
		return store.Comment{}, fmt.Errorf("unknown parent kind %q", in.ParentKind)
	}

	if in.Author.Anonymous() && in.ParentKind == ParentKindQuestion {
		if err := s.authors.TrackQuestion(ctx, in.Author.ID, in.ParentID, now); err != nil {
			return store.Comment{}, err
		}
	}

	return comment, nil
}

// guardAnonymous refuses an anonymous submission when the author already
// commented on the question or any comment on the thread shares the origin
// tag. The embedded presence set is checked first; a miss falls back to the
// comments collection and heals the set if a prior comment turns up.
func (s *Service) guardAnonymous(ctx context.Context, questionID, authorID, origin string) error {
	question, found, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return err
	}
	if !found {
		return errThreadUnavailable()
	}

	if question.CommenterIDs[authorID] {
		return errAlreadyCommented()
	}
	commented, err := s.comments.HasByParentAndAuthor(ctx, questionID, authorID)
	if err != nil {
		return err
	}
	if commented {
		// Re-derive the missed presence entry so the next check is cheap.
		if err := s.questions.MarkCommented(ctx, questionID, authorID); err != nil {
			s.log.Warn("failed to heal commenter set", zap.String("question_id", questionID), zap.Error(err))
		}
		return errAlreadyCommented()
	}

	if origin != "" {
		sameOrigin, err := s.comments.HasByParentAndOrigin(ctx, questionID, origin)
		if err != nil {
			return err
		}
		if sameOrigin {
			return errAlreadyCommented()
		}
	}
	return nil
}

func (s *Service) notifyAuthor(ctx context.Context, question store.Question, comment store.Comment) {
	event := notify.Event{
		Question: notify.EventRef{ID: question.ID, Text: question.Text},
		Comment:  notify.EventRef{ID: comment.ID, Text: comment.Text},
		Time:     s.now().UTC(),
	}
	if err := s.relay.Notify(ctx, question.AuthorID, event); err != nil {
		s.log.Warn("notification relay failed",
			zap.String("recipient", question.AuthorID),
			zap.String("comment_id", comment.ID),
			zap.Error(err))
	}
}

type CreateQuestionInput struct {
	ID       string
	Text     string
	AuthorID string
	Context  string
	URL      string
	Image    string
}

func (s *Service) CreateQuestion(ctx context.Context, in CreateQuestionInput) (store.Question, error) {
	now := s.now().UTC()
	question := store.Question{
		ID:            in.ID,
		Text:          in.Text,
		AuthorID:      in.AuthorID,
		Context:       in.Context,
		URL:           in.URL,
		Image:         in.Image,
		LikerIDs:      []string{},
		CommenterIDs:  map[string]bool{},
		CommentIDs:    []string{},
		SubscriberIDs: []string{},
		DateCreated:   now,
		DateModified:  now,
	}
	if question.ID == "" {
		question.ID = util.NewID("q")
	}
	if err := s.questions.Insert(ctx, question); err != nil {
		return store.Question{}, err
	}
	return question, nil
}

func (s *Service) GetQuestionByURL(ctx context.Context, url string) (store.Question, bool, error) {
	return s.questions.GetByURL(ctx, url)
}

type QuestionPage struct {
	Questions []store.Question `json:"questions"`
	Count     int              `json:"count"`
}

// ListQuestions pages questions newest-first behind a created-before cursor.
func (s *Service) ListQuestions(ctx context.Context, before time.Time, pageSize int) (QuestionPage, error) {
	if pageSize <= 0 {
		pageSize = commentPageSize
	}
	questions, err := s.questions.ListNewest(ctx, before, pageSize)
	if err != nil {
		return QuestionPage{}, err
	}
	count, err := s.questions.Count(ctx)
	if err != nil {
		return QuestionPage{}, err
	}
	return QuestionPage{Questions: questions, Count: count}, nil
}

// Dashboard lists the questions the user subscribes to.
func (s *Service) Dashboard(ctx context.Context, userID string) ([]store.Question, error) {
	return s.questions.ListBySubscriber(ctx, userID)
}

func (s *Service) GetComment(ctx context.Context, commentID string) (store.Comment, bool, error) {
	return s.comments.GetByID(ctx, commentID)
}

// MoreComments pages a thread newest-first behind a created-before cursor,
// with the thread total alongside.
func (s *Service) MoreComments(ctx context.Context, parentID string, before time.Time) (CommentPage, error) {
	comments, err := s.comments.ListPage(ctx, store.CommentPageQuery{
		ParentID:  parentID,
		CreatedLt: before,
		Sort:      docstore.Sort{Field: "dateCreated", Desc: true},
		Limit:     commentPageSize,
	})
	if err != nil {
		return CommentPage{}, err
	}
	count, err := s.comments.CountByParent(ctx, parentID)
	if err != nil {
		return CommentPage{}, err
	}
	return CommentPage{Comments: comments, Count: count}, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, questionID, text, url string) (bool, error) {
	return s.questions.UpdateMeta(ctx, questionID, text, url, s.now().UTC())
}

// UpdateComment rewrites a comment body; only the original author matches.
func (s *Service) UpdateComment(ctx context.Context, commentID, authorID, text string) (bool, error) {
	return s.comments.UpdateText(ctx, commentID, authorID, text, s.now().UTC())
}

func (s *Service) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	return s.comments.Delete(ctx, commentID)
}

// SetLike adds or removes a like on a question or comment.
func (s *Service) SetLike(ctx context.Context, kind, id, userID string, liked bool) error {
	switch kind {
	case ParentKindQuestion:
		return s.questions.SetLike(ctx, id, userID, liked)
	case ParentKindComment:
		return s.comments.SetLike(ctx, id, userID, liked)
	default:
		return fmt.Errorf("unknown like kind %q", kind)
	}
}

func (s *Service) SetSubscription(ctx context.Context, questionID, userID string, subscribed bool) error {
	return s.questions.SetSubscription(ctx, questionID, userID, subscribed)
}

// PendingNotifications returns the author's stored notification list.
func (s *Service) PendingNotifications(ctx context.Context, authorID string) ([]notify.Event, error) {
	return s.relay.Pending(ctx, authorID)
}

// SubscribeNotifications streams the author's live notifications.
func (s *Service) SubscribeNotifications(ctx context.Context, authorID string) (<-chan notify.Event, func(), error) {
	return s.relay.Subscribe(ctx, authorID)
}
