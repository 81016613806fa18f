package analysis

// extractPrompt instructs the model to describe one screenshot as a
// ScreenActivity object.
const extractPrompt = `You analyse desktop screenshots to build a private log of what the user was working on.

Look at the screenshot and reply with a single JSON object with exactly these keys:
  "timestamp":     the timestamp given by the user, unchanged
  "app_name":      the application in the foreground (e.g. "Visual Studio Code", "Firefox")
  "window_title":  the visible window or tab title, "" if none
  "activity_type": one of "coding", "browsing", "communication", "writing", "reading", "meeting", "design", "media", "terminal", "other"
  "description":   one or two sentences describing what the user is doing
  "url":           the URL if a browser address bar is visible, else ""
  "document":      the file or document name being edited or viewed, else ""
  "tags":          up to five short lowercase keywords
  "confidence":    a number between 0 and 1 expressing how sure you are

Describe only what is visible. Do not transcribe passwords, tokens or other secrets.`

// quickPrompt asks only for the foreground application.
const quickPrompt = `Identify the application in the foreground of this desktop screenshot.

Reply with a single JSON object with exactly these keys:
  "app_name":     the application name
  "window_title": the visible window or tab title, "" if none
  "url":          the URL if a browser address bar is visible, else ""`

// summarizePrompt condenses a list of activities.
const summarizePrompt = `You summarise a user's computer activity log.

The user message contains one JSON object per line, each describing one screenshot in chronological order.
Reply with a single JSON object with exactly these keys:
  "summary":          a short paragraph describing how the time was spent
  "total_activities": the number of log entries
  "top_apps":         up to five application names, most used first
  "categories":       an object mapping each activity_type to the number of entries with it
  "highlights":       up to five notable things the user accomplished or worked on`
