package sanitize

import "regexp"

type hazardPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// hazardPatterns are statements a syntax repair should never need to add.
var hazardPatterns = []hazardPattern{
	// shell
	{Name: "rm -rf", Pattern: regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r|--recursive\s+--force)\b`)},
	{Name: "git reset --hard", Pattern: regexp.MustCompile(`\bgit\s+reset\s+--hard\b`)},
	{Name: "git push --force", Pattern: regexp.MustCompile(`\bgit\s+push\s+.*(-f|--force)\b`)},
	{Name: "git clean", Pattern: regexp.MustCompile(`\bgit\s+clean\s+-[a-zA-Z]*[fd]`)},
	{Name: "chmod 777", Pattern: regexp.MustCompile(`\bchmod\s+(-R\s+)?777\b`)},
	{Name: "mkfs", Pattern: regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`)},
	{Name: "dd to device", Pattern: regexp.MustCompile(`\bdd\s+.*of=/dev/`)},
	{Name: "write to device", Pattern: regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|vd|xvd|disk)`)},
	{Name: "shutdown", Pattern: regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`)},
	{Name: "curl pipe shell", Pattern: regexp.MustCompile(`\b(curl|wget)\b[^|\n]*\|\s*(sudo\s+)?(ba|z)?sh\b`)},

	// sql
	{Name: "DROP", Pattern: regexp.MustCompile(`(?i)\bDROP\s+(TABLE|DATABASE|SCHEMA)\b`)},
	{Name: "TRUNCATE", Pattern: regexp.MustCompile(`(?i)\bTRUNCATE\s+(TABLE\s+)?\w`)},
	{Name: "DELETE FROM", Pattern: regexp.MustCompile(`(?i)\bDELETE\s+FROM\b`)},

	// library calls
	{Name: "shutil.rmtree", Pattern: regexp.MustCompile(`\bshutil\.rmtree\s*\(`)},
	{Name: "os.RemoveAll", Pattern: regexp.MustCompile(`\bos\.RemoveAll\s*\(`)},
	{Name: "remove_dir_all", Pattern: regexp.MustCompile(`\bremove_dir_all\s*\(`)},
	{Name: "recursive rm", Pattern: regexp.MustCompile(`\b(rmSync|rm)\s*\([^)]*recursive\s*:\s*true`)},
	{Name: "subprocess shell", Pattern: regexp.MustCompile(`\b(os\.system|subprocess\.\w+\([^)]*shell\s*=\s*True|child_process|exec\.Command)\b`)},
	{Name: "eval", Pattern: regexp.MustCompile(`\beval\s*\(`)},
}

// Hazards returns the names of hazard patterns that match text.
func Hazards(text string) []string {
	var names []string
	for _, h := range hazardPatterns {
		if h.Pattern.MatchString(text) {
			names = append(names, h.Name)
		}
	}
	return names
}

// IntroducedHazards returns hazards present in after but not in before.
func IntroducedHazards(before, after string) []string {
	var names []string
	for _, h := range hazardPatterns {
		if h.Pattern.MatchString(after) && !h.Pattern.MatchString(before) {
			names = append(names, h.Name)
		}
	}
	return names
}
